package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/roadscan/speedcam/internal/config"
	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/pipeline"
	"github.com/roadscan/speedcam/internal/render"
	"github.com/roadscan/speedcam/internal/report"
	"github.com/roadscan/speedcam/internal/video"
)

// processOptions holds the flags of the process command.
type processOptions struct {
	FramesDir      string
	DetectionsLog  string
	ConfigPath     string
	FPS            float64
	PixelsPerMeter float64
	SpeedLimit     float64
	Classes        []string
	Algorithm      string
	CSVPath        string
	DBPath         string
	ChartPath      string
	AnnotateDir    string
}

var processOpts processOptions

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Track vehicles in a frame sequence and estimate their speeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, processOpts)
	},
}

func init() {
	processCmd.Flags().StringVarP(&processOpts.FramesDir, "frames", "i", "", "Directory of numbered frame images")
	processCmd.Flags().StringVarP(&processOpts.DetectionsLog, "detections", "d", "", "JSONL detection log to replay")
	processCmd.Flags().StringVarP(&processOpts.ConfigPath, "config", "c", "", "JSON config file (built-in defaults when omitted)")
	processCmd.Flags().Float64Var(&processOpts.FPS, "fps", 0, "Frame rate override")
	processCmd.Flags().Float64Var(&processOpts.PixelsPerMeter, "ppm", 0, "Pixels per meter at the measurement zone")
	processCmd.Flags().Float64Var(&processOpts.SpeedLimit, "speed-limit", 0, "Speed limit in km/h")
	processCmd.Flags().StringSliceVar(&processOpts.Classes, "classes", nil, "Vehicle classes to track (e.g. car,truck,bus)")
	processCmd.Flags().StringVar(&processOpts.Algorithm, "algorithm", "", "Box matching algorithm: hungarian or greedy")
	processCmd.Flags().StringVar(&processOpts.CSVPath, "csv", "", "Write per-vehicle records to this CSV file")
	processCmd.Flags().StringVar(&processOpts.DBPath, "db", "", "Persist the run to this SQLite database")
	processCmd.Flags().StringVar(&processOpts.ChartPath, "chart", "", "Write a speed histogram HTML page to this file")
	processCmd.Flags().StringVar(&processOpts.AnnotateDir, "annotate-dir", "", "Write annotated frames to this directory")

	processCmd.MarkFlagRequired("frames")
	processCmd.MarkFlagRequired("detections")
	rootCmd.AddCommand(processCmd)
}

// loadProcessConfig layers flag overrides on top of the config file, or
// on the built-in defaults when no file is given.
func loadProcessConfig(opts processOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if opts.FPS > 0 {
		cfg.FPS = opts.FPS
	}
	if opts.PixelsPerMeter > 0 {
		cfg.PixelsPerMeter = opts.PixelsPerMeter
	}
	if opts.SpeedLimit > 0 {
		cfg.SpeedLimitKmh = opts.SpeedLimit
	}
	if len(opts.Classes) > 0 {
		cfg.VehicleClasses = opts.Classes
	}
	if opts.Algorithm != "" {
		cfg.MatchAlgorithm = opts.Algorithm
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runProcess(cmd *cobra.Command, opts processOptions) error {
	cfg, err := loadProcessConfig(opts)
	if err != nil {
		return err
	}

	src, err := video.NewImageDirSource(opts.FramesDir, cfg.FPS)
	if err != nil {
		return err
	}
	defer src.Close()

	replay, err := detect.OpenReplay(opts.DetectionsLog)
	if err != nil {
		return err
	}

	total := src.Frames()
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("processing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	popts := pipeline.Options{
		Config:     cfg,
		Source:     src,
		Detector:   replay,
		Recognizer: replay,
		Progress: func(done, total int) {
			bar.Set(done)
		},
	}

	if opts.AnnotateDir != "" {
		sink, err := video.NewImageDirSink(opts.AnnotateDir, 0)
		if err != nil {
			return err
		}
		defer sink.Close()
		renderer := render.New(render.Options{
			ZoneTop:    cfg.ZoneTop,
			ZoneBottom: cfg.ZoneBottom,
		})
		popts.Observer = render.Observer(renderer, sink)
	}

	driver, err := pipeline.NewDriver(popts)
	if err != nil {
		return err
	}

	res, err := driver.Run(cmd.Context())
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if opts.CSVPath != "" {
		if err := writeCSVFile(opts.CSVPath, res.Records); err != nil {
			return err
		}
	}
	if opts.DBPath != "" {
		if err := persistRun(opts.DBPath, opts.FramesDir, cfg.SpeedLimitKmh, res); err != nil {
			return err
		}
	}
	if opts.ChartPath != "" {
		if err := writeChartFile(opts.ChartPath, "Speed distribution", speedsOf(res.Records)); err != nil {
			return err
		}
	}

	printRecords(res)
	return nil
}

func writeCSVFile(path string, records []pipeline.VehicleRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	defer f.Close()
	return report.WriteCSV(f, records)
}

func persistRun(dbPath, source string, speedLimitKmh float64, res *pipeline.Result) error {
	store, err := report.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return err
	}
	return store.SaveRun(source, speedLimitKmh, res)
}

func writeChartFile(path, title string, speedsByClass map[string][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	defer f.Close()
	return report.SpeedHistogram(f, title, speedsByClass)
}

// speedsOf groups the estimated speeds by class name, skipping vehicles
// that never produced an estimate.
func speedsOf(records []pipeline.VehicleRecord) map[string][]float64 {
	byClass := make(map[string][]float64)
	for _, rec := range records {
		if rec.SpeedKmh <= 0 {
			continue
		}
		name := rec.Class.String()
		byClass[name] = append(byClass[name], rec.SpeedKmh)
	}
	return byClass
}

func printRecords(res *pipeline.Result) {
	printRecordTable(os.Stdout, res.Records)

	overspeed := 0
	for _, rec := range res.Records {
		if rec.Overspeed {
			overspeed++
		}
	}
	status := ""
	if res.Stats.Cancelled {
		status = ", interrupted"
	}
	fmt.Fprintf(os.Stderr, "%d frames, %d vehicles, %d over the limit, %d plate reads%s\n",
		res.Stats.FramesTotal, len(res.Records), overspeed, res.Stats.PlateReads, status)
	printSpeedStats(os.Stderr, report.Summarize(res.Records))
}

func printRecordTable(w io.Writer, records []pipeline.VehicleRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tCLASS\tSPEED\tPLATE\tFRAMES")
	for _, rec := range records {
		speed := "-"
		if rec.SpeedKmh > 0 {
			speed = fmt.Sprintf("%.1f km/h", rec.SpeedKmh)
		}
		if rec.Overspeed {
			speed += " OVER"
		}
		plate := rec.Plate
		if plate == "" {
			plate = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d-%d\n",
			rec.TrackID, rec.Class, speed, plate, rec.EntryFrame, rec.ExitFrame)
	}
	tw.Flush()
}

func printSpeedStats(w io.Writer, stats report.SpeedStats) {
	if stats.Measured == 0 {
		return
	}
	fmt.Fprintf(w, "speeds over %d measured vehicles: mean %.1f, median %.1f, p85 %.1f, max %.1f km/h\n",
		stats.Measured, stats.MeanKmh, stats.MedianKmh, stats.P85Kmh, stats.MaxKmh)
}
