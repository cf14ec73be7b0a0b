package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/config"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/logging"
	"github.com/hla-matching-engine/internal/service"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// CLI provides the command-line interface of the matching engine.
type CLI struct {
	out io.Writer
	err io.Writer

	configFile  string
	standalone  bool
	metricsFile string
	ensure      string
}

// NewCLI creates a CLI writing results to out and diagnostics to errOut.
func NewCLI(out, errOut io.Writer) *CLI {
	return &CLI{out: out, err: errOut}
}

// Run executes the command named by args, after any global options.
func (c *CLI) Run(ctx context.Context, args []string) error {
	args, err := c.parseGlobal(args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "generate":
		return c.generate(ctx, args[1:])
	case "activate":
		return c.activate(ctx, args[1:])
	case "classify":
		return c.classify(args[1:])
	case "lookup":
		return c.lookup(ctx, args[1:])
	case "grade":
		return c.grade(ctx, args[1:])
	case "search":
		return c.search(ctx, args[1:])
	case "status":
		return c.showStatus(ctx)
	case "health":
		return c.health(ctx)
	case "validate":
		return c.validate()
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.err, "Unknown command: %s\n\n", args[0])
		c.showHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// parseGlobal consumes the options that precede the command.
func (c *CLI) parseGlobal(args []string) ([]string, error) {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "--config", "-c":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a file", args[0])
			}
			c.configFile = args[1]
			args = args[2:]
		case "--metrics-file":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a file", args[0])
			}
			c.metricsFile = args[1]
			args = args[2:]
		case "--ensure":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a version", args[0])
			}
			c.ensure = args[1]
			args = args[2:]
		case "--standalone", "-s":
			c.standalone = true
			args = args[1:]
		case "--help", "-h":
			return args, nil
		default:
			return nil, fmt.Errorf("unknown option: %s", args[0])
		}
	}
	return args, nil
}

// showHelp displays usage information.
func (c *CLI) showHelp() error {
	help := `
HLA Matching Engine

Usage:
  hla-engine [options] <command> [arguments]

Options:
  --config, -c FILE     Read configuration from FILE (default: ./config.yaml if present)
  --standalone, -s      Use the local data directory (HLA_DATA_DIR) with SQLite storage
  --ensure VERSION      Generate VERSION first unless it is already ready
  --metrics-file FILE   Write Prometheus metrics to FILE when the command finishes

Commands:
  generate VERSION [--activate]          Compile a nomenclature release into dictionaries
  activate VERSION                       Make a generated release the active one
  classify NAME                          Print the typing category of an HLA name
  lookup LOCUS NAME [--kind K] [--version V]
                                         Resolve matching, scoring or tce metadata
  grade LOCUS PATIENT DONOR [--version V]
                                         Grade one donor typing against one patient typing
  search --patient FILE --donors FILE [--limit N]
                                         Score and rank donors for a patient
  status                                 Show the engine configuration and active release
  health                                 Check the stores, caches and nomenclature source
  validate                               Validate the configuration

Examples:
  # Compile and activate release 3.55.0 from the configured source
  hla-engine generate 3550 --activate

  # Show the P groups an NMDP code expands to
  hla-engine lookup A 01:AB --kind matching

  # Rank donors against a patient
  hla-engine search --patient patient.json --donors donors.json --limit 20
`
	fmt.Fprintln(c.out, help)
	return nil
}

func (c *CLI) loadConfig() (*domain.Config, string, error) {
	if c.standalone {
		lite := config.LoadLiteConfig()
		if err := lite.EnsureDataDir(); err != nil {
			return nil, "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return lite.Config(), "", nil
	}

	var (
		manager *config.Manager
		err     error
	)
	if c.configFile != "" {
		manager, err = config.NewManagerFromFile(c.configFile)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return nil, "", err
	}
	return manager.GetConfig(), manager.ConfigFile(), nil
}

// withEngine opens the engine, runs fn and releases everything afterwards.
func (c *CLI) withEngine(ctx context.Context, fn func(*Engine) error) error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := NewEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if c.ensure != "" {
		generated, err := engine.EnsureVersion(ctx, c.ensure)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"version":   c.ensure,
			"generated": generated,
		}).Debug("Ensured nomenclature version")
	}

	if err := fn(engine); err != nil {
		return err
	}
	if c.metricsFile != "" {
		if err := engine.WriteMetrics(c.metricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (c *CLI) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// generate compiles a release.
func (c *CLI) generate(ctx context.Context, args []string) error {
	var version string
	activate := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--activate", "-a":
			activate = true
		default:
			version = args[i]
		}
	}
	if version == "" {
		return fmt.Errorf("generate requires a version")
	}

	return c.withEngine(ctx, func(e *Engine) error {
		report, err := e.Service.GenerateDictionary(ctx, version)
		if err != nil {
			return err
		}
		if activate {
			if err := e.Service.ActivateVersion(ctx, version); err != nil {
				return err
			}
		}
		return c.printJSON(report)
	})
}

// activate switches the active release.
func (c *CLI) activate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("activate requires exactly one version")
	}
	return c.withEngine(ctx, func(e *Engine) error {
		if err := e.Service.ActivateVersion(ctx, args[0]); err != nil {
			return err
		}
		return c.printJSON(map[string]string{"active_version": args[0]})
	})
}

// classify needs no dictionary, so it does not open the engine.
func (c *CLI) classify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("classify requires exactly one HLA name")
	}
	category, err := hlatyping.Classify(args[0])
	if err != nil {
		return err
	}
	return c.printJSON(map[string]string{"name": args[0], "category": string(category)})
}

// lookup resolves one typing.
func (c *CLI) lookup(ctx context.Context, args []string) error {
	kind := "scoring"
	var version string
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--kind", "-k":
			if i+1 < len(args) {
				kind = args[i+1]
				i++
			}
		case "--version", "-v":
			if i+1 < len(args) {
				version = args[i+1]
				i++
			}
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		return fmt.Errorf("lookup requires a locus and a name")
	}
	locus, err := domain.ParseLocus(positional[0])
	if err != nil {
		return err
	}
	name := positional[1]

	return c.withEngine(ctx, func(e *Engine) error {
		switch kind {
		case "matching":
			m, err := e.Service.LookupMatching(ctx, locus, name, version)
			if err != nil {
				return err
			}
			return c.printJSON(m)
		case "scoring":
			s, err := e.Service.LookupScoring(ctx, locus, name, version)
			if err != nil {
				return err
			}
			return c.printJSON(s)
		case "tce":
			if locus != domain.LocusDPB1 {
				return fmt.Errorf("TCE groups are only defined for DPB1, not %s", locus)
			}
			group, err := e.Service.LookupTceGroup(ctx, name, version)
			if err != nil {
				return err
			}
			return c.printJSON(map[string]string{"name": name, "tce_group": group})
		default:
			return fmt.Errorf("invalid lookup kind: %q", kind)
		}
	})
}

// grade grades one donor typing against one patient typing.
func (c *CLI) grade(ctx context.Context, args []string) error {
	var version string
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v":
			if i+1 < len(args) {
				version = args[i+1]
				i++
			}
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 3 {
		return fmt.Errorf("grade requires a locus, a patient typing and a donor typing")
	}
	locus, err := domain.ParseLocus(positional[0])
	if err != nil {
		return err
	}

	return c.withEngine(ctx, func(e *Engine) error {
		score, err := e.Service.GradeAndScore(ctx, locus, positional[1], positional[2], version)
		if err != nil {
			return err
		}
		return c.printJSON(score)
	})
}

// search ranks a donor file against a patient file.
func (c *CLI) search(ctx context.Context, args []string) error {
	var patientFile, donorFile string
	limit := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--patient", "-p":
			if i+1 < len(args) {
				patientFile = args[i+1]
				i++
			}
		case "--donors", "-d":
			if i+1 < len(args) {
				donorFile = args[i+1]
				i++
			}
		case "--limit", "-n":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid limit: %s", args[i+1])
				}
				limit = n
				i++
			}
		}
	}
	if patientFile == "" || donorFile == "" {
		return fmt.Errorf("search requires --patient and --donors")
	}
	patient, err := readPatient(patientFile)
	if err != nil {
		return err
	}

	return c.withEngine(ctx, func(e *Engine) error {
		resp, err := e.Service.Search(ctx, *patient, service.JSONFileDonorSource{Path: donorFile})
		if err != nil {
			return err
		}
		if limit > 0 && len(resp.Results) > limit {
			resp.Results = resp.Results[:limit]
		}
		return c.printJSON(resp)
	})
}

func readPatient(path string) (*domain.PatientTyping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patient file: %w", err)
	}
	var patient domain.PatientTyping
	if err := json.Unmarshal(data, &patient); err != nil {
		return nil, fmt.Errorf("failed to parse patient file %s: %w", path, err)
	}
	hla, err := service.CanonicalHla(patient.Hla)
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", patient.PatientID, err)
	}
	patient.Hla = hla
	return &patient, nil
}

// showStatus displays the current engine status.
func (c *CLI) showStatus(ctx context.Context) error {
	cfg, configFile, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := NewEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	status, err := engine.GetStatus(ctx, configFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "HLA Matching Engine Status")
	fmt.Fprintln(c.out, "==========================")
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Environment: %s\n", status.Environment)
	if status.ConfigFile != "" {
		fmt.Fprintf(c.out, "Config file: %s\n", status.ConfigFile)
	}
	fmt.Fprintf(c.out, "Nomenclature source: %s (%s)\n", status.Source, status.SourceLocation)
	fmt.Fprintf(c.out, "Storage backend: %s\n", status.Backend)
	if status.RedisEnabled {
		fmt.Fprintln(c.out, "Redis cache: enabled")
	} else {
		fmt.Fprintln(c.out, "Redis cache: disabled")
	}
	fmt.Fprintf(c.out, "Excluded loci: %s\n", strings.Join(status.ExcludedLoci, ", "))
	if status.ActiveVersion != "" {
		fmt.Fprintf(c.out, "Active version: %s\n", status.ActiveVersion)
	} else {
		fmt.Fprintln(c.out, "Active version: none")
	}
	fmt.Fprintln(c.out)

	if len(status.Issues) > 0 {
		fmt.Fprintln(c.out, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(c.out, "  ! %s\n", issue)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

// health prints the component checks and fails when any component is unhealthy.
func (c *CLI) health(ctx context.Context) error {
	return c.withEngine(ctx, func(e *Engine) error {
		status := e.Health(ctx)
		if err := c.printJSON(status); err != nil {
			return err
		}
		if unhealthy := status.Unhealthy(); len(unhealthy) > 0 {
			return fmt.Errorf("unhealthy components: %s", strings.Join(unhealthy, ", "))
		}
		return nil
	})
}

// validate checks the current configuration without opening any store.
func (c *CLI) validate() error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(c.out, "Configuration has issues:\n  - %s\n", err)
		return err
	}
	fmt.Fprintln(c.out, "Configuration is valid")
	return nil
}
