package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/project-kessel/leakguard/internal/config"
	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/request"
)

// checkResult is the YAML document every check command prints
type checkResult struct {
	Surface guard.Surface     `yaml:"surface"`
	Caller  guard.AuthContext `yaml:"caller"`
	Allowed bool              `yaml:"allowed"`
	Input   string            `yaml:"input,omitempty"`
	Output  string            `yaml:"output,omitempty"`
	Denial  *denialResult     `yaml:"denial,omitempty"`
}

type denialResult struct {
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
	Status  int    `yaml:"status"`
	Body    string `yaml:"body"`
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a single surface with the configured guard",
		Long: `Evaluate one leak surface offline, using the same configuration as
serve, and print the decision as YAML.

The caller is anonymous unless --authenticated or --privileged is given.

Examples:
  leakguard check rest --route /wp/v2/users
  leakguard check rest --route /wp/v2/posts --query _embed --authenticated
  leakguard check text --surface feeds --value admin --site-title "My Blog"
  leakguard check author-url --url https://example.com/author/admin/ --user-id 1 --site-url https://example.com
  leakguard check redirect --redirect-url https://example.com/author/admin/ --requested-url "https://example.com/?author=1"`,
	}

	cmd.PersistentFlags().Bool("authenticated", false, "evaluate as a logged-in caller")
	cmd.PersistentFlags().Bool("privileged", false, "evaluate as a caller with site-management rights")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newCheckRESTCmd())
	cmd.AddCommand(newCheckTextCmd())
	cmd.AddCommand(newCheckAuthorURLCmd())
	cmd.AddCommand(newCheckRedirectCmd())

	return cmd
}

func newCheckRESTCmd() *cobra.Command {
	var (
		route string
		query []string
	)

	cmd := &cobra.Command{
		Use:   "rest",
		Short: "Check a REST API request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, caller, err := checkGuard(cmd)
			if err != nil {
				return err
			}

			decision := g.CheckREST(cmd.Context(), request.New(route, query...))

			result := checkResult{
				Surface: guard.SurfaceREST,
				Caller:  caller,
				Allowed: decision.Allowed,
				Input:   route,
			}
			if d := decision.Denied(); d != nil {
				result.Denial = &denialResult{
					Code:    d.Code,
					Message: d.Message,
					Status:  d.Status,
					Body:    string(d.Body()),
				}
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&route, "route", "", "REST route, e.g. /wp/v2/users")
	cmd.Flags().StringSliceVar(&query, "query", nil, "query flags present on the request, e.g. _embed")
	_ = cmd.MarkFlagRequired("route")

	return cmd
}

func newCheckTextCmd() *cobra.Command {
	var surface, value string

	cmd := &cobra.Command{
		Use:   "text",
		Short: "Check a public display text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, s, err := textFilter(surface)
			if err != nil {
				return err
			}

			g, caller, err := checkGuard(cmd)
			if err != nil {
				return err
			}

			out := filter(g, cmd.Context(), value)
			return printResult(cmd.OutOrStdout(), checkResult{
				Surface: s,
				Caller:  caller,
				Allowed: out == value,
				Input:   value,
				Output:  out,
			})
		},
	}

	cmd.Flags().StringVar(&surface, "surface", "", "text surface: feeds, comments or login")
	cmd.Flags().StringVar(&value, "value", "", "text the site would render")
	_ = cmd.MarkFlagRequired("surface")

	return cmd
}

func textFilter(surface string) (func(*guard.Guard, context.Context, string) string, guard.Surface, error) {
	switch surface {
	case "feeds":
		return (*guard.Guard).FeedAuthor, guard.SurfaceFeedAuthor, nil
	case "comments":
		return (*guard.Guard).CommentAuthor, guard.SurfaceCommentAuthor, nil
	case "login":
		return (*guard.Guard).LoginError, guard.SurfaceLoginError, nil
	default:
		return nil, "", fmt.Errorf("unknown surface %q (supported: feeds, comments, login)", surface)
	}
}

func newCheckAuthorURLCmd() *cobra.Command {
	var (
		url    string
		userID int64
	)

	cmd := &cobra.Command{
		Use:   "author-url",
		Short: "Check a generated author archive URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, caller, err := checkGuard(cmd)
			if err != nil {
				return err
			}

			out := g.AuthorURL(cmd.Context(), url, userID)
			return printResult(cmd.OutOrStdout(), checkResult{
				Surface: guard.SurfaceAuthorURL,
				Caller:  caller,
				Allowed: out == url,
				Input:   url,
				Output:  out,
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "author archive URL the site generated")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "numeric id of the author")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func newCheckRedirectCmd() *cobra.Command {
	var redirectURL, requestedURL string

	cmd := &cobra.Command{
		Use:   "redirect",
		Short: "Check a canonical author redirect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, caller, err := checkGuard(cmd)
			if err != nil {
				return err
			}

			target, ok := g.FilterRedirect(cmd.Context(), redirectURL, requestedURL)
			result := checkResult{
				Surface: guard.SurfaceAuthorRedirect,
				Caller:  caller,
				Allowed: ok,
				Input:   requestedURL,
			}
			if ok {
				result.Output = target
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "canonical redirect target")
	cmd.Flags().StringVar(&requestedURL, "requested-url", "", "URL the visitor requested")
	_ = cmd.MarkFlagRequired("requested-url")

	return cmd
}

// checkGuard builds a guard from configuration whose caller identity comes
// from the --authenticated and --privileged flags.
func checkGuard(cmd *cobra.Command) (*guard.Guard, guard.AuthContext, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, guard.AuthContext{}, err
	}

	authenticated, _ := cmd.Flags().GetBool("authenticated")
	privileged, _ := cmd.Flags().GetBool("privileged")
	caller := guard.AuthContext{
		Authenticated: authenticated || privileged,
		Privileged:    privileged,
	}

	provider := config.NewProvider(cfg)
	provider.SetLogger(config.NewLoggerTo(cmd.ErrOrStderr(), cfg.Observability))
	provider.SetResolver(guard.StaticResolver(caller))

	g, err := provider.Guard()
	if err != nil {
		return nil, guard.AuthContext{}, fmt.Errorf("failed to build guard: %w", err)
	}
	return g, caller, nil
}

func printResult(w io.Writer, result checkResult) error {
	out, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = w.Write(out)
	return err
}
