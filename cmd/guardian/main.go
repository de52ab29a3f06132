// Package main is the entry point for the guardian health log.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/guardian-go/internal/chart"
	"github.com/jwulff/guardian-go/internal/cloudsync"
	"github.com/jwulff/guardian-go/internal/config"
	"github.com/jwulff/guardian-go/internal/dexcom"
	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/logging"
	"github.com/jwulff/guardian-go/internal/mail"
	"github.com/jwulff/guardian-go/internal/medication"
	"github.com/jwulff/guardian-go/internal/ocr"
	"github.com/jwulff/guardian-go/internal/qr"
	"github.com/jwulff/guardian-go/internal/report"
	"github.com/jwulff/guardian-go/internal/server"
	"github.com/jwulff/guardian-go/internal/session"
	"github.com/jwulff/guardian-go/internal/severity"
	"github.com/jwulff/guardian-go/internal/storage"
	"github.com/jwulff/guardian-go/internal/storage/boltdb"
	"github.com/jwulff/guardian-go/internal/storage/sqlite"
)

const (
	chartWidth  = 60
	chartHeight = 15
)

type app struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	loc   *time.Location
	store storage.Store
	sess  *session.Session
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		return
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Debug)
	defer log.Sync()

	a, err := open(cfg, log)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Printf("Error: %v\n", err)
		a.store.Close()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("Guardian - Personal Health Log")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  guardian patient                              - Show the patient identity")
	fmt.Println("  guardian set-patient <id> <name> <gender> <year>")
	fmt.Println("                                                - Replace the patient (clears readings)")
	fmt.Println("  guardian add-bp <sys> <dia> <pulse> [med]     - Log a blood pressure reading")
	fmt.Println("  guardian add-bg <value> <timing> [med]        - Log a glucose reading (fasting|post-prandial|other)")
	fmt.Println("  guardian list <bp|glucose>                    - List readings with their status")
	fmt.Println("  guardian export <kind> [indices]              - Print the report for selected readings")
	fmt.Println("  guardian qr <kind> <out.png> [indices]        - Write a QR code of selected readings")
	fmt.Println("  guardian ocr <kind> <textfile> [timing]       - Log a reading from recognized device text")
	fmt.Println("  guardian chart <kind>                         - Plot readings with medication markers")
	fmt.Println("  guardian advice                               - Show trend findings for the last week")
	fmt.Println("  guardian med-add <name>                       - Log a medication dose")
	fmt.Println("  guardian med-list                             - Show medication history")
	fmt.Println("  guardian drugs [category]                     - Show the medication catalog")
	fmt.Println("  guardian mail <kind> <to> [indices]           - Mail the report for selected readings")
	fmt.Println("  guardian import-cgm [minutes]                 - Import glucose readings from Dexcom Share")
	fmt.Println("  guardian sync                                 - Push the latest bundles to the sync topic")
	fmt.Println("  guardian serve                                - Run the HTTP API")
	fmt.Println()
	fmt.Println("Indices are comma separated positions from 'list'; omitted means all.")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  GUARDIAN_STORE      - sqlite, bolt or memory (default sqlite)")
	fmt.Println("  GUARDIAN_DB_PATH    - database file (default guardian.db)")
	fmt.Println("  GUARDIAN_TZ         - display time zone (default Local)")
	fmt.Println("  MQTT_ENABLED        - enable cloud sync while serving")
	fmt.Println("  SENDGRID_API_KEY    - enables the mail command")
	fmt.Println("  DEXCOM_USERNAME     - Dexcom Share username (optional)")
	fmt.Println("  DEXCOM_PASSWORD     - Dexcom Share password (optional)")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreBolt:
		return boltdb.Open(cfg.DBPath)
	case config.StoreMemory:
		return storage.NewMemoryKV(), nil
	default:
		return sqlite.NewFileStore(cfg.DBPath)
	}
}

func open(cfg *config.Config, log *zap.SugaredLogger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}
	sess := session.Open(context.Background(), store, log, session.Options{Location: loc})
	return &app{cfg: cfg, log: log, loc: loc, store: store, sess: sess}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "patient":
		return a.showPatient()
	case "set-patient":
		return a.setPatient(ctx, args)
	case "add-bp":
		return a.addBloodPressure(ctx, args)
	case "add-bg":
		return a.addGlucose(ctx, args)
	case "list":
		return a.list(args)
	case "export":
		return a.export(ctx, args)
	case "qr":
		return a.writeQR(ctx, args)
	case "ocr":
		return a.ocr(ctx, args)
	case "chart":
		return a.chart(args)
	case "advice":
		return a.advice()
	case "med-add":
		return a.addMedication(ctx, args)
	case "med-list":
		return a.listMedications()
	case "drugs":
		return a.drugs(args)
	case "mail":
		return a.mail(ctx, args)
	case "import-cgm":
		return a.importCGM(ctx, args)
	case "sync":
		return a.sync(ctx)
	case "serve":
		return a.serve(ctx)
	default:
		showUsage()
		return nil
	}
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("missing arguments\nUsage: guardian %s", usage)
	}
	return nil
}

func medFlag(args []string, i int) bool {
	if len(args) <= i {
		return false
	}
	switch strings.ToLower(args[i]) {
	case "med", "medication", "true", "yes", "y":
		return true
	}
	return false
}

func kindArg(args []string) (health.Kind, error) {
	if len(args) < 1 {
		return "", errors.New("reading kind required (bp or glucose)")
	}
	return health.ParseKind(args[0])
}

// indicesArg parses "0,2,3"; an absent argument selects every reading.
func (a *app) indicesArg(kind health.Kind, args []string, i int) ([]int, error) {
	if len(args) <= i || args[i] == "all" {
		n := len(a.sess.Readings(kind))
		out := make([]int, n)
		for j := range out {
			out[j] = j
		}
		return out, nil
	}
	var out []int
	for _, p := range strings.Split(args[i], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func (a *app) showPatient() error {
	p := a.sess.Patient()
	fmt.Printf("ID:         %s\n", p.ID)
	fmt.Printf("Name:       %s\n", p.DisplayName)
	fmt.Printf("Gender:     %s\n", p.Gender)
	fmt.Printf("Birth year: %d (age %d)\n", p.BirthYear, p.Age(time.Now()))
	if !p.Complete() {
		fmt.Println()
		fmt.Println("Patient identity is incomplete. Exports are disabled until it is set:")
		fmt.Println("  guardian set-patient <id> <name> <gender> <year>")
	}
	return nil
}

func (a *app) setPatient(ctx context.Context, args []string) error {
	if err := need(args, 4, "set-patient <id> <name> <gender> <year>"); err != nil {
		return err
	}
	year, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid birth year %q", args[3])
	}
	p := health.Patient{
		ID:          args[0],
		DisplayName: args[1],
		Gender:      health.ParseGender(strings.ToLower(args[2])),
		BirthYear:   year,
	}
	if err := a.sess.UpdatePatient(ctx, p); err != nil {
		return err
	}
	fmt.Println("Patient updated. Previous readings were cleared.")
	return nil
}

func atoi(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func (a *app) record(ctx context.Context, r health.Reading) error {
	tier, err := a.sess.AddReading(ctx, r)
	if err != nil {
		return err
	}
	fmt.Printf("Logged %s [%s]\n", report.Line(health.Normalize(r), a.loc), tier.Label())
	return nil
}

func (a *app) addBloodPressure(ctx context.Context, args []string) error {
	if err := need(args, 3, "add-bp <sys> <dia> <pulse> [med]"); err != nil {
		return err
	}
	var vals [3]int
	for i, name := range []string{"systolic", "diastolic", "pulse"} {
		n, err := atoi(name, args[i])
		if err != nil {
			return err
		}
		vals[i] = n
	}
	return a.record(ctx, health.BloodPressure{
		Timestamp:       time.Now(),
		Systolic:        vals[0],
		Diastolic:       vals[1],
		Pulse:           vals[2],
		MedicationTaken: medFlag(args, 3),
	})
}

func (a *app) addGlucose(ctx context.Context, args []string) error {
	if err := need(args, 2, "add-bg <value> <timing> [med]"); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid glucose value %q", args[0])
	}
	return a.record(ctx, health.Glucose{
		Timestamp:       time.Now(),
		Value:           v,
		Timing:          health.ParseTiming(args[1]),
		MedicationTaken: medFlag(args, 2),
	})
}

func (a *app) list(args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	rs := a.sess.Readings(kind)
	if len(rs) == 0 {
		fmt.Printf("No %s readings.\n", kind.Title())
		return nil
	}
	for i, r := range rs {
		fmt.Printf("%3d  %s [%s]\n", i, report.Line(r, a.loc), severity.Classify(r).Label())
	}
	if _, tier, ok := a.sess.Latest(kind); ok {
		fmt.Printf("\nLatest: %s (%s)\n", tier.Label(), tier.Presentation().Class)
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	indices, err := a.indicesArg(kind, args, 1)
	if err != nil {
		return err
	}
	ex, err := a.sess.Export(ctx, kind, indices)
	if err != nil {
		return err
	}
	fmt.Print(ex.Text)
	fmt.Printf("\nBundle %s\n", ex.Bundle.ID)
	if ex.Compact.Partial {
		fmt.Printf("QR payload keeps the latest %d of %d readings.\n", qr.MaxObservations, len(ex.Bundle.Observations))
	}
	return nil
}

func (a *app) writeQR(ctx context.Context, args []string) error {
	if err := need(args, 2, "qr <kind> <out.png> [indices]"); err != nil {
		return err
	}
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	indices, err := a.indicesArg(kind, args, 2)
	if err != nil {
		return err
	}
	ex, err := a.sess.Export(ctx, kind, indices)
	if err != nil {
		return err
	}
	img, err := qr.Render(ex.Bundle, qr.PNGEncoder{Size: a.cfg.QRSize})
	if err != nil {
		return err
	}
	if img.Notice != "" {
		return errors.New(img.Notice)
	}
	if err := os.WriteFile(args[1], img.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[1], err)
	}
	fmt.Printf("QR code written to %s\n", args[1])
	if img.Partial {
		fmt.Println(strings.TrimSpace(qr.PartialSuffix))
	}
	return nil
}

func (a *app) ocr(ctx context.Context, args []string) error {
	if err := need(args, 2, "ocr <kind> <textfile> [timing]"); err != nil {
		return err
	}
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	image, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	res, err := ocr.Scan(ctx, ocr.PlainText{}, image, kind)
	if err != nil {
		return err
	}
	fmt.Println(res.Message())
	if !res.OK() {
		return nil
	}
	timing := health.TimingOther
	if len(args) > 2 {
		timing = health.ParseTiming(args[2])
	}
	r, err := res.Reading(time.Now(), timing)
	if err != nil {
		return err
	}
	return a.record(ctx, r)
}

func (a *app) chart(args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	s := chart.Build(kind, a.sess.Readings(kind), a.sess.Medications())
	for _, line := range chart.Plot(s, chartWidth, chartHeight) {
		fmt.Println(line)
	}
	return nil
}

func (a *app) advice() error {
	findings := a.sess.Recommendations(time.Now())
	if len(findings) == 0 {
		fmt.Println("No concerns in the last 7 days.")
	}
	for _, f := range findings {
		fmt.Println(f.String())
	}

	seen := make(map[string]bool)
	for _, ev := range a.sess.Medications() {
		d, ok := medication.Lookup(ev.DrugName)
		if !ok || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		if w := medication.Warning(d); w != medication.NoNote {
			fmt.Printf("%s: %s\n", d.Name, w)
		}
	}
	return nil
}

func (a *app) addMedication(ctx context.Context, args []string) error {
	if err := need(args, 1, "med-add <name>"); err != nil {
		return err
	}
	ev, err := a.sess.AddMedication(ctx, strings.Join(args, " "), time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Logged %s (%s) at %s\n", ev.DrugName, ev.Category, report.FormatTimestamp(ev.Timestamp, a.loc))
	if ev.Note != "" && ev.Note != medication.NoNote {
		fmt.Printf("Note: %s\n", ev.Note)
	}
	return nil
}

func (a *app) listMedications() error {
	meds := a.sess.Medications()
	if len(meds) == 0 {
		fmt.Println("No medications logged.")
		return nil
	}
	for _, ev := range meds {
		fmt.Printf("%s  %-14s %-12s %s\n", report.FormatTimestamp(ev.Timestamp, a.loc), ev.DrugName, ev.Category, ev.ID)
	}
	return nil
}

func (a *app) drugs(args []string) error {
	var c medication.Category
	if len(args) > 0 {
		c = medication.Category(strings.ToLower(args[0]))
	}
	for _, d := range medication.ByCategory(c) {
		fmt.Printf("%s  %-14s %-12s %s\n", d.ID, d.Name, d.Category, d.SideEffect)
	}
	return nil
}

func (a *app) mail(ctx context.Context, args []string) error {
	if err := need(args, 2, "mail <kind> <to> [indices]"); err != nil {
		return err
	}
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	indices, err := a.indicesArg(kind, args, 2)
	if err != nil {
		return err
	}
	ex, err := a.sess.Export(ctx, kind, indices)
	if err != nil {
		return err
	}
	sender := mail.NewSendGrid(a.cfg.SendGridAPIKey, a.cfg.MailFromName, a.cfg.MailFrom, a.log)
	err = sender.Send(ctx, mail.Message{
		To:      args[1],
		Subject: report.Subject(ex.Bundle),
		Text:    ex.Text,
		HTML:    report.HTML(ex.Bundle, a.loc),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Report sent to %s\n", args[1])
	return nil
}

func (a *app) importCGM(ctx context.Context, args []string) error {
	if !a.cfg.DexcomEnabled() {
		return errors.New("DEXCOM_USERNAME and DEXCOM_PASSWORD must be set")
	}
	minutes := 24 * 60
	if len(args) > 0 {
		n, err := atoi("minutes", args[0])
		if err != nil {
			return err
		}
		minutes = n
	}

	client := dexcom.NewClient(a.cfg.DexcomUsername, a.cfg.DexcomPassword)
	gs, err := client.FetchGlucose(ctx, minutes/5+1, minutes)
	if err != nil {
		return err
	}
	rs := make([]health.Reading, len(gs))
	for i, g := range gs {
		rs[i] = g
	}
	added, err := a.sess.Import(ctx, rs)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d new readings (%d fetched).\n", added, len(gs))
	return nil
}

func (a *app) newSyncer(ctx context.Context) (*cloudsync.Syncer, *cloudsync.MQTTPublisher, error) {
	topic, err := a.sess.SyncTopic(ctx)
	if err != nil {
		return nil, nil, err
	}
	pub := cloudsync.NewMQTTPublisher(cloudsync.MQTTConfig{Broker: a.cfg.MQTTBroker}, a.log)
	opts := cloudsync.DefaultOptions()
	opts.RetryDelay = a.cfg.SyncRetryDelay
	opts.MaxAttempts = a.cfg.SyncMaxAttempts
	return cloudsync.NewSyncer(pub, topic, opts, a.log), pub, nil
}

func (a *app) sync(ctx context.Context) error {
	syncer, pub, err := a.newSyncer(ctx)
	if err != nil {
		return err
	}
	defer pub.Close()

	fmt.Printf("Topic: %s\n", syncer.Topic())
	if last, ok := a.sess.LastSync(ctx); ok && !last.LastPush.IsZero() {
		fmt.Printf("Last push: %s (bundle %s)\n", report.FormatTimestamp(last.LastPush, a.loc), last.BundleID)
	}
	defer func() { a.sess.RecordSync(ctx, syncer.State()) }()

	for _, kind := range []health.Kind{health.KindBloodPressure, health.KindGlucose} {
		p, err := a.sess.SyncLatest(kind, a.cfg.SyncRecent)
		if err != nil {
			fmt.Printf("  %s: skipped (%v)\n", kind.Title(), err)
			continue
		}
		if err := syncer.Push(ctx, p); err != nil {
			return err
		}
		fmt.Printf("  %s: pushed bundle %s\n", kind.Title(), p.Bundle.ID)
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	opts := server.Options{Encoder: qr.PNGEncoder{Size: a.cfg.QRSize}, SyncRecent: a.cfg.SyncRecent}

	if a.cfg.MQTTEnabled {
		syncer, pub, err := a.newSyncer(ctx)
		if err != nil {
			return err
		}
		defer pub.Close()
		for _, kind := range []health.Kind{health.KindBloodPressure, health.KindGlucose} {
			err := syncer.Schedule(a.cfg.SyncSchedule, func(context.Context) (cloudsync.Payload, error) {
				return a.sess.SyncLatest(kind, a.cfg.SyncRecent)
			})
			if err != nil {
				return err
			}
		}
		syncer.Start()
		defer func() {
			syncer.Stop()
			a.sess.RecordSync(context.Background(), syncer.State())
		}()
		opts.Sync = syncer
	}

	srv := &http.Server{Addr: a.cfg.Addr, Handler: server.New(a.sess, a.log, opts)}

	errc := make(chan error, 1)
	go func() {
		a.log.Infow("starting HTTP server", "addr", a.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
