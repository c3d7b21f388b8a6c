package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"blurclient/internal/callback"
	"blurclient/internal/checkout"
	"blurclient/internal/domain"
	"blurclient/internal/entitlement"
	"blurclient/internal/identity"
	"blurclient/internal/infra"
	"blurclient/internal/intake"
	"blurclient/internal/localstate"
	"blurclient/internal/providers/blur"
	"blurclient/internal/session"
	"blurclient/internal/storage"
)

const usage = `usage: blur <command> [flags]

commands:
  process <image>   blur an image through the remote service
  status            show identity, plan and today's usage
  plans             list available plans
  upgrade           purchase a paid plan
  redeem            re-run entitlement reconciliation after checkout
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	app, err := newApp(cfg, logger)
	if err != nil {
		exitWithError(err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "process":
		err = app.runProcess(ctx, os.Args[2:])
	case "status":
		err = app.runStatus(ctx)
	case "plans":
		err = app.runPlans()
	case "upgrade":
		err = app.runUpgrade(ctx, os.Args[2:])
	case "redeem":
		err = app.runRedeem(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

type app struct {
	cfg    *infra.Config
	logger infra.Logger
	state  *localstate.Store
	ident  *identity.Store
	ent    *entitlement.Store
	api    *blur.Client
}

func newApp(cfg *infra.Config, logger infra.Logger) (*app, error) {
	state, err := localstate.Open(cfg.StateDBPath)
	if err != nil {
		return nil, err
	}
	api, err := blur.NewClient(blur.Options{
		BaseURL:        cfg.APIBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.HTTPRequestTimeout,
	})
	if err != nil {
		state.Close()
		return nil, err
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		state:  state,
		ident:  identity.NewStore(state),
		ent:    entitlement.NewStore(state),
		api:    api,
	}, nil
}

func (a *app) Close() {
	_ = a.state.Close()
}

// cliEvents renders session notifications on the terminal.
type cliEvents struct {
	out *storage.FileStore
	img *intake.Image
}

func (e *cliEvents) PreviewReady(string) {
	fmt.Printf("Uploaded %s (%s, %d bytes); processing...\n", e.img.Name, e.img.MIME, len(e.img.Data))
}

func (e *cliEvents) ResultReady(result *blur.Result) {
	path, err := e.out.SaveResult(context.Background(), e.img.Name, result.ContentType, result.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not save result: %v\n", err)
		return
	}
	fmt.Printf("Image processed successfully: %s\n", path)
}

func (e *cliEvents) UpgradeRequired(reason string) {
	fmt.Printf("%s\n", reason)
	fmt.Println("Run `blur plans` to compare tiers or `blur upgrade -plan pro` to continue today.")
}

func (e *cliEvents) Failed(reason string) {
	fmt.Fprintf(os.Stderr, "%s\n", reason)
}

func (a *app) runProcess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	outDir := fs.String("out", a.cfg.OutputDir, "directory to write the blurred result to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("process: exactly one image path is required")
	}

	img, err := acceptInput(fs.Arg(0))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedType):
			return fmt.Errorf("please provide an image file (PNG, JPEG, WebP or GIF): %w", err)
		case errors.Is(err, domain.ErrTooLarge):
			return fmt.Errorf("image size must be under 10MB: %w", err)
		default:
			return err
		}
	}

	out, err := storage.NewFileStore(*outDir)
	if err != nil {
		return err
	}

	events := &cliEvents{out: out, img: img}
	orch := session.New(a.api, a.ident, a.ent, events, &a.logger)
	if err := orch.Accept(img); err != nil {
		return err
	}
	if err := orch.Submit(ctx); err != nil {
		// Already surfaced through events; exit nonzero without double-reporting.
		os.Exit(1)
	}
	return nil
}

func (a *app) runStatus(ctx context.Context) error {
	userID, err := a.ident.Current(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = "(not initialized)"
	}
	unlocked, err := a.ent.IsUnlocked(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("identity:  %s\n", userID)
	if unlocked {
		fmt.Println("plan:      unlocked (unlimited processing)")
		return nil
	}
	used, err := a.ent.TodaysUsage(ctx)
	if err != nil {
		return err
	}
	fmt.Println("plan:      free")
	fmt.Printf("usage:     %d of %d today\n", used, entitlement.FreeDailyLimit)
	return nil
}

func (a *app) runPlans() error {
	for _, info := range domain.Plans {
		fmt.Printf("%s — %s %s (%s)\n", strings.ToUpper(string(info.Plan)), info.Price, info.Period, info.Description)
		for _, feature := range info.Features {
			fmt.Printf("  - %s\n", feature)
		}
	}
	return nil
}

func (a *app) runUpgrade(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	planFlag := fs.String("plan", "pro", "plan to purchase (pro, pro_plus)")
	waitFlag := fs.Duration("wait", 15*time.Minute, "how long to wait for the checkout redirect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := domain.ParsePlan(*planFlag)
	if err != nil {
		return err
	}
	if !plan.IsPaid() {
		fmt.Println("You are already on the free plan.")
		return nil
	}

	// Checkout needs an identity to attach the purchase to.
	if _, err := a.ident.Ensure(ctx); err != nil {
		return err
	}

	initiator := checkout.NewInitiator(a.api, a.ident, &a.logger)
	url, err := initiator.Start(ctx, plan)
	if err != nil {
		if errors.Is(err, domain.ErrMissingIdentity) {
			return errors.New("identity not found, run `blur status` and retry")
		}
		return fmt.Errorf("failed to start checkout: %w", err)
	}

	fmt.Printf("Opening checkout in your browser:\n  %s\n", url)
	if err := openBrowser(url); err != nil {
		a.logger.Warn().Err(err).Msg("could not open browser, follow the link manually")
	}

	reconciler := checkout.NewReconciler(a.api, a.ent, a.cfg.TrustRedirectUnlock, &a.logger)
	server := callback.NewServer(reconciler, a.ident, a.cfg.CallbackPort, a.logger)

	waitCtx, cancel := context.WithTimeout(ctx, *waitFlag)
	defer cancel()
	fmt.Println("Waiting for checkout to complete...")
	result, err := server.WaitForRedirect(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("timed out waiting for checkout; run `blur redeem` once you have paid")
		}
		return err
	}
	if result.Unlocked {
		fmt.Println("Subscription activated successfully! You now have unlimited access.")
	} else {
		fmt.Println("Checkout finished but no active subscription was found; run `blur redeem` to retry.")
	}
	return nil
}

func (a *app) runRedeem(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("redeem", flag.ExitOnError)
	userFlag := fs.String("user", "", "identity to reconcile (defaults to this device's identity)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID := strings.TrimSpace(*userFlag)
	if userID == "" {
		current, err := a.ident.Current(ctx)
		if err != nil {
			return err
		}
		userID = current
	}
	if userID == "" {
		return errors.New("no identity on this device; pass -user explicitly")
	}

	reconciler := checkout.NewReconciler(a.api, a.ent, a.cfg.TrustRedirectUnlock, &a.logger)
	unlocked, err := reconciler.Reconcile(ctx, userID)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	if unlocked {
		fmt.Println("Subscription active, account unlocked.")
	} else {
		fmt.Println("No active subscription found for this identity.")
	}
	return nil
}

// acceptInput funnels both entry channels into validation: a file path, or
// "-" for image bytes piped on stdin.
func acceptInput(arg string) (*intake.Image, error) {
	if arg != "-" {
		return intake.AcceptFile(arg)
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, intake.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return intake.Accept("stdin", data)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "blur: %v\n", err)
	os.Exit(1)
}
