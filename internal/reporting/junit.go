package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skillissue/mockview/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one interview session.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one planned topic.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure marks a topic that was asked but not demonstrated.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError marks a topic whose answers could not be scored.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitSkipped marks a topic that was never asked.
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit maps a report to JUnit XML so interview practice can be
// tracked by CI dashboards. Each planned topic is one test case.
func ConvertToJUnit(r *models.SessionReport) *JUnitTestSuites {
	var durationSec float64
	if !r.EndedAt.IsZero() {
		durationSec = r.EndedAt.Sub(r.StartedAt).Seconds()
	}

	suite := JUnitTestSuite{
		Name:      fmt.Sprintf("%s (%s)", r.Role, r.Seniority),
		Tests:     len(r.Coverage),
		Time:      durationSec,
		Timestamp: r.StartedAt.UTC().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "session", Value: r.SessionID},
			{Name: "complete", Value: fmt.Sprintf("%t", r.Complete)},
			{Name: "mean_relevance", Value: fmt.Sprintf("%.4f", r.Summary.MeanRelevance)},
			{Name: "mean_correctness", Value: fmt.Sprintf("%.4f", r.Summary.MeanCorrectness)},
		},
	}

	for _, c := range r.Coverage {
		tc := convertCoverage(r, c)
		switch {
		case tc.Failure != nil:
			suite.Failures++
		case tc.Error != nil:
			suite.Errors++
		case tc.Skipped != nil:
			suite.Skipped++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       durationSec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

func convertCoverage(r *models.SessionReport, c models.TopicCoverage) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      c.Label,
		Classname: string(c.Source),
	}

	switch c.Status {
	case models.CoverageNotAsked:
		tc.Skipped = &JUnitSkipped{Message: "topic was not asked"}
	case models.CoverageInadequate:
		scored := false
		for _, e := range r.Timeline {
			if e.TopicID == c.TopicID && e.Relevance != nil && !e.Superseded {
				scored = true
				break
			}
		}
		if !scored {
			tc.Error = &JUnitError{Message: "answers could not be scored", Type: "EvaluationUnavailable"}
			break
		}
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("%s: relevance=%.2f correctness=%.2f", c.Label, c.BestRelevance, c.BestCorrectness),
			Type:    "NotDemonstrated",
			Body:    formatTopicTurns(r, c.TopicID),
		}
	}
	return tc
}

func formatTopicTurns(r *models.SessionReport, topicID string) string {
	var b strings.Builder
	for _, e := range r.Timeline {
		if e.TopicID != topicID || e.Relevance == nil || e.Superseded {
			continue
		}
		fmt.Fprintf(&b, "[turn %d, depth %d] relevance=%.2f correctness=%.2f", e.Index+1, e.Depth, *e.Relevance, *e.Correctness)
		for _, tag := range e.Tags {
			fmt.Fprintf(&b, " %s", tag)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// MarshalJUnit encodes the JUnit form of r with an XML header.
func MarshalJUnit(r *models.SessionReport) ([]byte, error) {
	data, err := xml.MarshalIndent(ConvertToJUnit(r), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// WriteJUnitXML writes JUnit XML to the specified file path.
func WriteJUnitXML(r *models.SessionReport, path string) error {
	data, err := MarshalJUnit(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
