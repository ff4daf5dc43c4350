package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionFile represents a session log file on disk.
type SessionFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListSessions finds .jsonl session log files in dir.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), "-session.jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, SessionFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a session log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable interview timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " INTERVIEW TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))
		turn := jsonNumber(ev.Data["turn"])

		switch ev.Type {
		case EventSessionStart:
			role, _ := ev.Data["role"].(string)           //nolint:errcheck
			seniority, _ := ev.Data["seniority"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🚀 Interview started  role=%s  seniority=%s  topics=%d  budget=%d\n",
				ts, role, seniority, jsonNumber(ev.Data["topic_count"]), jsonNumber(ev.Data["turn_budget"]))

		case EventQuestion:
			topic, _ := ev.Data["topic_id"].(string) //nolint:errcheck
			text, _ := ev.Data["text"].(string)      //nolint:errcheck
			source, _ := ev.Data["source"].(string)  //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❓ Turn %d  %s (depth %d, %s): %s\n", ts, turn, topic, jsonNumber(ev.Data["depth"]), source, text)

		case EventTurnClosed:
			outcome, _ := ev.Data["outcome"].(string) //nolint:errcheck
			reason, _ := ev.Data["reason"].(string)   //nolint:errcheck
			fmt.Fprintf(w, "[%s]    Turn %d closed: %s (%s)\n", ts, turn, outcome, reason)

		case EventBargeIn:
			fmt.Fprintf(w, "[%s] ✋ Candidate interrupted turn %d\n", ts, turn)

		case EventReopen:
			fmt.Fprintf(w, "[%s] ↩  Turn %d reopened\n", ts, turn)

		case EventEvaluation:
			icon := "✓"
			if unavailable, _ := ev.Data["unavailable"].(bool); unavailable { //nolint:errcheck
				icon = "?"
			}
			fmt.Fprintf(w, "[%s]    %s Evaluated turn %d  relevance=%.2f  correctness=%.2f\n",
				ts, icon, turn, jsonFloat(ev.Data["relevance"]), jsonFloat(ev.Data["correctness"]))

		case EventDecision:
			decision, _ := ev.Data["decision"].(string) //nolint:errcheck
			next, _ := ev.Data["next_topic"].(string)   //nolint:errcheck
			if next != "" {
				fmt.Fprintf(w, "[%s] ➜  %s → %s\n", ts, decision, next)
			} else {
				fmt.Fprintf(w, "[%s] ➜  %s\n", ts, decision)
			}

		case EventDegraded:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ⚠  %s\n", ts, msg)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventSessionEnd:
			reason, _ := ev.Data["reason"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🏁 Interview ended (%s)  %d turns  (%dms)\n",
				ts, reason, jsonNumber(ev.Data["turns"]), jsonNumber(ev.Data["duration_ms"]))

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}
