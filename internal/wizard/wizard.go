package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/config"
)

const maxFollowUpDepth = 3

// Answers holds everything collected by the init wizard.
type Answers struct {
	GeneratorProvider string
	GeneratorModel    string
	ScorerProvider    string
	ScorerModel       string
	TurnBudget        int
	TimeBudget        time.Duration
	MaxDepth          int
	StoreKind         string
	RedisURL          string
	SessionLog        bool
}

// DefaultAnswers mirrors the built-in configuration.
func DefaultAnswers() Answers {
	return Answers{
		GeneratorProvider: config.DefaultGeneratorProvider,
		ScorerProvider:    config.DefaultScorerProvider,
		TurnBudget:        config.DefaultTurnBudget,
		TimeBudget:        config.DefaultTimeBudget,
		MaxDepth:          config.DefaultMaxDepth,
		StoreKind:         config.DefaultStoreKind,
	}
}

var generatorProviders = []string{
	capability.ProviderTemplate,
	capability.ProviderCopilot,
	capability.ProviderOpenAI,
	capability.ProviderAnthropic,
	capability.ProviderGoogle,
	capability.ProviderOllama,
}

var scorerProviders = []string{
	capability.ProviderHeuristic,
	capability.ProviderCopilot,
	capability.ProviderOpenAI,
	capability.ProviderAnthropic,
	capability.ProviderGoogle,
	capability.ProviderOllama,
}

// Run asks for the interview settings, starting from defaults.
func Run(in io.Reader, out io.Writer, defaults Answers) (*Answers, error) {
	a := defaults
	turnBudget := strconv.Itoa(a.TurnBudget)
	timeBudget := a.TimeBudget.String()
	maxDepth := strconv.Itoa(a.MaxDepth)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Question generator").
				Options(huh.NewOptions(generatorProviders...)...).
				Value(&a.GeneratorProvider),
			huh.NewInput().
				Title("Generator model").
				Description("Leave empty for the provider default").
				Value(&a.GeneratorModel),
			huh.NewSelect[string]().
				Title("Answer scorer").
				Options(huh.NewOptions(scorerProviders...)...).
				Value(&a.ScorerProvider),
			huh.NewInput().
				Title("Scorer model").
				Description("Leave empty for the provider default").
				Value(&a.ScorerModel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Turn budget").
				Description("Questions asked before the interview concludes").
				Value(&turnBudget).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Time budget").
				Description("Wall-clock limit, e.g. 30m").
				Value(&timeBudget).
				Validate(validateDuration),
			huh.NewInput().
				Title("Follow-up depth").
				Description("Deeper questions allowed per topic").
				Value(&maxDepth).
				Validate(validateNonNegativeInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Session store").
				Options(huh.NewOptions("file", "redis")...).
				Value(&a.StoreKind),
			huh.NewInput().
				Title("Redis URL").
				Description("Only used by the redis store").
				Placeholder("redis://localhost:6379/0").
				Value(&a.RedisURL),
			huh.NewConfirm().
				Title("Write a JSONL event log for every session?").
				Value(&a.SessionLog),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	// validated by the form
	a.TurnBudget, _ = strconv.Atoi(strings.TrimSpace(turnBudget))
	a.TimeBudget, _ = time.ParseDuration(strings.TrimSpace(timeBudget))
	a.MaxDepth, _ = strconv.Atoi(strings.TrimSpace(maxDepth))
	a.GeneratorModel = strings.TrimSpace(a.GeneratorModel)
	a.ScorerModel = strings.TrimSpace(a.ScorerModel)
	a.RedisURL = strings.TrimSpace(a.RedisURL)

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks answers that the form cannot check field by field.
func (a Answers) Validate() error {
	if a.StoreKind == "redis" && a.RedisURL == "" {
		return fmt.Errorf("redis store requires a Redis URL")
	}
	if a.TurnBudget <= 0 || a.TimeBudget <= 0 {
		return fmt.Errorf("turn and time budgets must be positive")
	}
	if a.MaxDepth < 0 || a.MaxDepth > maxFollowUpDepth {
		return fmt.Errorf("follow-up depth must be between 0 and %d", maxFollowUpDepth)
	}
	return nil
}

// Config converts the answers into a project configuration.
func (a Answers) Config() *config.Config {
	cfg := config.New()
	cfg.Backends.Generator.Provider = a.GeneratorProvider
	cfg.Backends.Generator.Model = a.GeneratorModel
	cfg.Backends.Scorer.Provider = a.ScorerProvider
	cfg.Backends.Scorer.Model = a.ScorerModel
	cfg.Policy.TurnBudget = a.TurnBudget
	cfg.Policy.TimeBudget = config.Duration(a.TimeBudget)
	depth := a.MaxDepth
	cfg.Policy.MaxDepth = &depth
	cfg.Store.Kind = a.StoreKind
	if a.StoreKind == "redis" {
		cfg.Store.RedisURL = a.RedisURL
	}
	logs := a.SessionLog
	cfg.SessionLog = &logs
	return cfg
}

// GenerateConfigYAML renders the .mockview.yaml content for the answers.
func GenerateConfigYAML(a Answers) ([]byte, error) {
	data, err := yaml.Marshal(a.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	header := "# mockview project configuration\n"
	return append([]byte(header), data...), nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveInt(s string) error {
	if err := validateNonNegativeInt(s); err != nil {
		return err
	}
	if n, _ := strconv.Atoi(strings.TrimSpace(s)); n == 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a duration like 30m or 1h")
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}
