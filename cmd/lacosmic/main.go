// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed ins the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/mlnoga/lacosmic/internal/config"
	"github.com/mlnoga/lacosmic/internal/fits"
	"github.com/mlnoga/lacosmic/internal/lacosmic"
	"github.com/mlnoga/lacosmic/internal/log"
	"github.com/mlnoga/lacosmic/internal/median"
	"github.com/mlnoga/lacosmic/internal/ops"
	"github.com/mlnoga/lacosmic/internal/ops/cosmic"
	"github.com/mlnoga/lacosmic/internal/parallel"
	"github.com/mlnoga/lacosmic/internal/rest"
	"github.com/mlnoga/lacosmic/internal/stats"
	"github.com/mlnoga/lacosmic/internal/synth"
)

const version = "0.1.0"

// A flag.Value for float32 parameters
type float32Value struct{ p *float32 }

func (v float32Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*v.p), 'g', -1, 32)
}

func (v float32Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*v.p = float32(f)
	return nil
}

// A flag.Value for string enums
type stringValue[T ~string] struct{ p *T }

func (v stringValue[T]) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}

func (v stringValue[T]) Set(s string) error {
	*v.p = T(s)
	return nil
}

// Settings from defaults, then the config file, then explicitly given flags
var cfg = config.DefaultConfig()

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var configFile = flag.String("config", "", "load settings from YAML `file`; explicit flags take precedence")
var logFile = flag.String("log", log.Auto, "save log output to `file`. `%auto` derives the name from the clean output pattern")

var addr = flag.String("addr", ":8080", "serve: listen on this address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to this directory (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change to this user id after chroot, -1=keep")

var statsCSV = flag.String("statsCSV", "", "stats: also write per-image statistics to CSV `file`")

var synthWidth = flag.Int("synthWidth", 512, "synth: image width in pixels")
var synthHeight = flag.Int("synthHeight", 512, "synth: image height in pixels")
var synthSky = flag.Float64("synthSky", 1000, "synth: sky level in ADU")
var synthCosmics = flag.Int("synthCosmics", 100, "synth: number of injected cosmic rays")
var synthStars = flag.Int("synthStars", 20, "synth: number of injected stars")
var synthSeed = flag.Uint("synthSeed", 1, "synth: random seed")

func init() {
	p := &cfg.Detection
	flag.Var(float32Value{&p.Gain}, "gain", "detector gain in electrons per ADU")
	flag.Var(float32Value{&p.ReadNoise}, "readNoise", "read noise in electrons")
	flag.Var(float32Value{&p.SigClip}, "sigClip", "Laplacian signal to noise detection limit")
	flag.Var(float32Value{&p.SigFrac}, "sigFrac", "fraction of sigClip for neighbouring pixels")
	flag.Var(float32Value{&p.ObjLim}, "objLim", "minimum contrast between Laplacian and fine structure")
	flag.Var(float32Value{&p.Background}, "background", "previously subtracted sky level in ADU")
	flag.Var(float32Value{&p.SatLevel}, "satLevel", "saturation level in ADU, <=0 disables saturated star masking")
	flag.IntVar(&p.MaxIter, "maxIter", p.MaxIter, "maximum number of detection passes")
	flag.BoolVar(&p.SepMed, "sepMed", p.SepMed, "use separable medians")
	flag.Var(stringValue[lacosmic.CleanType]{&p.CleanType}, "cleanType", "replacement for flagged pixels: median, medmask, meanmask or idw")
	flag.BoolVar(&p.PreClean, "preClean", p.PreClean, "replace bad pixels before the first pass")
	flag.Var(stringValue[lacosmic.FSMode]{&p.FSMode}, "fsMode", "fine structure mode: median or convolve")
	flag.Var(stringValue[lacosmic.PSFModel]{&p.PSFModel}, "psfModel", "PSF model for fsMode convolve: gauss, gaussx, gaussy or moffat")
	flag.Var(float32Value{&p.PSFFWHM}, "psfFWHM", "PSF full width at half maximum in pixels")
	flag.IntVar(&p.PSFSize, "psfSize", p.PSFSize, "PSF kernel size in pixels, odd")
	flag.Var(float32Value{&p.PSFBeta}, "psfBeta", "Moffat beta")
	flag.IntVar(&p.NoiseWindow, "noiseWindow", p.NoiseWindow, "median window for noise model and large structure removal")
	flag.IntVar(&p.FineWindow, "fineWindow", p.FineWindow, "median window for fine structure")
	flag.IntVar(&p.FineSmoothWindow, "fineSmoothWindow", p.FineSmoothWindow, "median window for the fine structure baseline")
	flag.IntVar(&p.CleanWindow, "cleanWindow", p.CleanWindow, "neighbourhood for replacing flagged pixels")
	flag.IntVar(&p.Workers, "workers", p.Workers, "worker goroutines per image, 0=auto")

	flag.StringVar(&cfg.Input.BadPixels, "bpm", cfg.Input.BadPixels, "apply bad pixel mask from FITS `file`, nonzero pixels are bad")
	flag.BoolVar(&cfg.Input.UseHeader, "useHeader", cfg.Input.UseHeader, "take gain, read noise and saturation level from the FITS header")
	flag.BoolVar(&cfg.Input.MaskNonFinite, "maskNonFinite", cfg.Input.MaskNonFinite, "treat NaN and Inf pixels as bad pixels")
	flag.StringVar(&cfg.Output.Clean, "clean", cfg.Output.Clean, "save cleaned images with given filename pattern, e.g. `clean%04d.fits`")
	flag.StringVar(&cfg.Output.Mask, "mask", cfg.Output.Mask, "save cosmic ray masks with given filename pattern, e.g. `mask%04d.fits`")
	flag.StringVar(&cfg.Output.Preview, "preview", cfg.Output.Preview, "save mask overlay previews with given filename pattern, e.g. `preview%04d.jpg`")
	flag.IntVar(&cfg.Processing.Parallel, "parallel", cfg.Processing.Parallel, "images processed concurrently, 0=auto")
}

// Loads the config file if given, then reapplies the flags given on the command line
func loadConfig() error {
	if *configFile == "" {
		return cfg.Validate()
	}
	explicit := map[string]string{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
	loaded, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	*cfg = *loaded
	for name, value := range explicit {
		if err := flag.Set(name, value); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func main() {
	logWriter := log.Writer()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `LA Cosmic Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (detect|synth|stats|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  detect  Detect and remove cosmic rays from each input image
  synth   Write a synthetic exposure with injected cosmic rays to the given file, and score detection on it
  stats   Show sky statistics and noise model consistency of input images
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	if err := loadConfig(); err != nil {
		log.Fatalf("Error in settings: %s\n", err.Error())
	}

	// Initialize logging to file in addition to stdout, if selected
	if args[0] == "detect" {
		*logFile = log.AutoName(*logFile, cfg.Output.Clean, ".log")
	} else {
		*logFile = log.AutoName(*logFile, "", ".log")
	}
	if *logFile != "" {
		if err := log.AlsoToFile(*logFile); err != nil {
			log.Fatalf("Unable to open logfile '%s'\n", *logFile)
		}
	}
	defer log.Close()

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "detect":
		err = cmdDetect(args[1:], logWriter)

	case "synth":
		err = cmdSynth(args[1:], logWriter)

	case "stats":
		err = cmdStats(args[1:], logWriter)

	case "serve":
		if err = rest.MakeSandbox(logWriter, *chroot, *setuid); err == nil {
			err = rest.Serve(*addr, logWriter)
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	if err != nil {
		log.Fatalf("Error: %s\n", err.Error())
	}
	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
}

// Builds the operator for detection with the current settings
func newOpCosmic() *cosmic.OpCosmic {
	op := cosmic.NewOpCosmic(&cfg.Detection, cfg.Input.BadPixels, cfg.Output.Mask, cfg.Output.Preview)
	op.UseHeader = cfg.Input.UseHeader
	op.MaskNonFinite = cfg.Input.MaskNonFinite
	return op
}

func cmdDetect(patterns []string, logWriter io.Writer) error {
	if len(patterns) == 0 {
		return fmt.Errorf("no input files given")
	}
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(patterns),
		newOpCosmic(),
		ops.NewOpSave(cfg.Output.Clean, ops.SaveImage),
	)
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Detecting cosmic rays with these settings:\n%s\n", string(m))

	c := ops.NewContext(logWriter)
	_, err = ops.Run(seq, c, cfg.Processing.Parallel)
	return err
}

// Writes a synthetic exposure, then runs detection on it and scores the result against the injected truth
func cmdSynth(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("synth needs exactly one output file name")
	}
	p := &cfg.Detection
	g := synth.New(uint32(*synthSeed))
	e := g.FlatSky(*synthWidth, *synthHeight, float32(*synthSky), p.Gain, p.ReadNoise)
	sigma := e.Sigma()
	for i := 0; i < *synthStars; i++ {
		x, y := float32(4+g.Intn(e.Width-8)), float32(4+g.Intn(e.Height-8))
		peak := sigma * float32(10+g.Intn(200))
		if p.PSFModel == lacosmic.PSFMoffat {
			e.AddMoffatStar(x, y, p.PSFFWHM, p.PSFBeta, peak)
		} else {
			e.AddGaussianStar(x, y, p.PSFFWHM, peak)
		}
	}
	g.AddRandomCosmics(e, *synthCosmics, 8*sigma, 100*sigma)

	f := fits.NewImageFromNaxisn([]int32{int32(e.Width), int32(e.Height)}, e.Data)
	f.Header.Floats["GAIN"] = e.Gain
	f.Header.Floats["RDNOISE"] = e.ReadNoise
	f.Header.History = append(f.Header.History, fmt.Sprintf("synthetic exposure, seed %d, %d cosmic rays, %d stars", *synthSeed, *synthCosmics, *synthStars))
	fmt.Fprintf(logWriter, "Writing %s synthetic exposure with %d cosmic ray pixels to %s\n", f.DimensionsToString(), e.NumTruth(), args[0])
	if err := f.WriteFile(args[0]); err != nil {
		return err
	}

	d, err := lacosmic.NewDetector(e.Width, e.Height, p, logWriter)
	if err != nil {
		return err
	}
	res, err := d.Run(e.Data, nil)
	if err != nil {
		return err
	}
	conf := stats.CompareMasks(res.Mask, e.Truth, e.Width)
	fmt.Fprintf(logWriter, "Detection: %v, completeness %.3f, purity %.3f\n", conf, conf.Completeness(), conf.Purity())

	f.Mask, f.FoundIn = res.Mask, res.FoundIn
	if cfg.Output.Mask != "" {
		if _, err := ops.NewOpSave(cfg.Output.Mask, ops.SaveMask).Apply(f, ops.NewContext(logWriter)); err != nil {
			return err
		}
	}
	if cfg.Output.Preview != "" {
		if _, err := ops.NewOpSave(cfg.Output.Preview, ops.SavePreview).Apply(f, ops.NewContext(logWriter)); err != nil {
			return err
		}
	}
	return nil
}

// Prints sky statistics and checks the noise model against the data
func cmdStats(patterns []string, logWriter io.Writer) error {
	c := ops.NewContext(logWriter)
	promises, err := ops.NewOpLoadMany(patterns).MakePromises(nil, c)
	if err != nil {
		return err
	}
	var csv *os.File
	if *statsCSV != "" {
		if csv, err = os.Create(*statsCSV); err != nil {
			return err
		}
		defer csv.Close()
		fmt.Fprintf(csv, "ID,File,%s,Residual/noise mean,Residual/noise stddev\n", (&stats.BasicStats{}).ToCSVHeader())
	}
	pool := parallel.NewPool(c.MaxThreads)
	p := &cfg.Detection
	samples := make([]float32, statsSamples)
	for _, promise := range promises {
		f, err := promise()
		if err != nil {
			return err
		}
		gain, readNoise := p.Gain, p.ReadNoise
		if cfg.Input.UseHeader {
			if v, ok := f.Header.Number(fits.GainKeys...); ok && v > 0 {
				gain = v
			}
			if v, ok := f.Header.Number(fits.ReadNoiseKeys...); ok && v >= 0 {
				readNoise = v
			}
		}
		approxLoc := stats.FastApproxMedian(f.Data, samples)
		approxScale := stats.FastApproxMAD(f.Data, approxLoc, samples)
		fmt.Fprintf(logWriter, "%d: Sampled location %.6g scale %.6g\n", f.ID, approxLoc, approxScale)

		loc, scale, err := stats.HistogramScaleLoc(f.Data, 256)
		if err != nil {
			fmt.Fprintf(logWriter, "%d: Histogram fit failed: %s\n", f.ID, err.Error())
			loc, scale = approxLoc, approxScale
		}
		fmt.Fprintf(logWriter, "%d: Sky location %.6g scale %.6g (histogram fit), expected noise %.6g for gain %.4g readNoise %.4g\n",
			f.ID, loc, scale, stats.ExpectedNoise(loc+p.Background, gain, readNoise), gain, readNoise)

		mean, stdDev := noiseResiduals(pool, f.Data, f.Width(), f.Height(), p, gain, readNoise)
		fmt.Fprintf(logWriter, "%d: Residual/noise mean %.4f stddev %.4f, 1.0 indicates a consistent noise model\n", f.ID, mean, stdDev)
		if csv != nil {
			fmt.Fprintf(csv, "%d,%s,%s,%.4f,%.4f\n", f.ID, f.FileName, f.Stats.ToCSVLine(), mean, stdDev)
		}
	}
	return nil
}

// Number of pixels sampled for the quick sky estimate of the stats command
const statsSamples = 16384

// Mean and standard deviation of the median residual over the modelled noise,
// with the subtracted pedestal restored so shot noise follows the true sky level
func noiseResiduals(pool *parallel.Pool, data []float32, width, height int, p *lacosmic.Params, gain, readNoise float32) (mean, stdDev float64) {
	work := make([]float32, len(data))
	pool.Pixels(width, height, func(lower, upper int) {
		for i := lower; i < upper; i++ {
			work[i] = data[i] + p.Background
		}
	})
	smoothed := make([]float32, len(data))
	noise := make([]float32, len(data))
	median.Filter(pool, smoothed, work, width, height, p.NoiseWindow)
	lacosmic.NoiseMap(pool, noise, smoothed, gain, readNoise)
	return stats.NoiseConsistency(work, smoothed, noise, nil)
}
