package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"eventflow/internal/config"
	"eventflow/internal/dataset"
	"eventflow/internal/loss"
	"eventflow/internal/optimizer"
	"eventflow/internal/sim"
	"eventflow/internal/spike"
	"eventflow/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults used when empty)")
	lossName := flag.String("loss", "", "Loss variant: ttfs or vmax")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	minibatch := flag.Int("minibatch-size", 0, "Minibatch size")
	lr := flag.Float64("lr", 0, "Initial learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	runs := flag.Int("runs", 0, "Number of independent seeded runs")
	saveTo := flag.String("save-to", "", "Checkpoint path")
	logEvery := flag.Int("log-every", 0, "Log every N minibatches")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		Loss:          *lossName,
		Epochs:        *epochs,
		MinibatchSize: *minibatch,
		LR:            *lr,
		Seed:          *seed,
		Runs:          *runs,
		SaveTo:        *saveTo,
		LogEvery:      *logEvery,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Runs == 1 {
		if err := runSeed(ctx, cfg, cfg.Seed); err != nil {
			log.Fatalf("training failed: %v", err)
		}
		return
	}

	// Independent seeds share nothing: each goroutine builds its own
	// datasets, layers, loss and optimizer.
	var wg sync.WaitGroup
	errs := make(chan error, cfg.Runs)
	for i := 0; i < cfg.Runs; i++ {
		runCfg := *cfg
		runSeedValue := cfg.Seed + int64(i)
		if cfg.SaveTo != "" {
			runCfg.SaveTo = fmt.Sprintf("%s.seed%d", cfg.SaveTo, runSeedValue)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runSeed(ctx, &runCfg, runSeedValue); err != nil {
				errs <- fmt.Errorf("seed %d: %w", runSeedValue, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		log.Fatalf("training failed: %v", err)
	}
}

func runSeed(ctx context.Context, cfg *config.Config, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	enc := dataset.EncodingConfig{}

	train, err := dataset.Encode(dataset.YinYang(cfg.TrainSamples, rng), enc)
	if err != nil {
		return err
	}
	var valid, test *spike.Dataset
	if cfg.ValidSamples > 0 {
		if valid, err = dataset.Encode(dataset.YinYang(cfg.ValidSamples, rng), enc); err != nil {
			return err
		}
	}
	if cfg.TestSamples > 0 {
		if test, err = dataset.Encode(dataset.YinYang(cfg.TestSamples, rng), enc); err != nil {
			return err
		}
	}

	hidden := sim.New(sim.Config{
		In:        dataset.YinYangInputs,
		Neurons:   cfg.HiddenNeurons,
		WMean:     cfg.HiddenWMean,
		WStd:      cfg.HiddenWStd,
		TauMem:    cfg.TauMem,
		TauSyn:    cfg.TauSyn,
		Threshold: cfg.Threshold,
	}, uint64(seed))
	output := sim.New(sim.Config{
		In:        cfg.HiddenNeurons,
		Neurons:   cfg.Classes,
		WMean:     cfg.OutputWMean,
		WStd:      cfg.OutputWStd,
		TauMem:    cfg.TauMem,
		TauSyn:    cfg.TauSyn,
		Threshold: cfg.Threshold,
	}, uint64(seed)+1)

	var lossFn trainer.Loss
	switch cfg.Loss {
	case "ttfs":
		lossFn = loss.NewTTFS(loss.TTFSParams{
			Neurons: cfg.Classes,
			Alpha:   cfg.Alpha,
			Tau0:    cfg.Tau0,
			Tau1:    cfg.Tau1,
		})
	case "vmax":
		lossFn = loss.NewVMax(loss.VMaxParams{Neurons: cfg.Classes})
	default:
		return fmt.Errorf("unknown loss %q", cfg.Loss)
	}

	opt := optimizer.NewAdam(optimizer.Params{LR: cfg.LR, GradClip: cfg.GradClip}, hidden, output)
	stages := []trainer.Stage{
		{Layer: hidden, BumpThreshold: cfg.BumpThresholdHidden},
		{Layer: output, BumpThreshold: cfg.BumpThresholdOutput},
	}

	tr, err := trainer.New(trainer.Config{
		Epochs:        cfg.Epochs,
		MinibatchSize: cfg.MinibatchSize,
		Shuffle:       cfg.Shuffle,
		DropProb:      cfg.DropProb,
		LRDecayGamma:  cfg.LRDecayGamma,
		LRDecayStep:   cfg.LRDecayStep,
		WeightBump:    cfg.WeightBump,
		ValidEvery:    cfg.ValidEvery,
		TestEvery:     cfg.TestEvery,
		SaveEvery:     cfg.SaveEvery,
		SaveTo:        cfg.SaveTo,
		LogEvery:      cfg.LogEvery,
		Seed:          seed,
	}, stages, lossFn, opt, train, valid, test)
	if err != nil {
		return err
	}

	log.Printf("run=%s seed=%d loss=%s train=%d valid=%d test=%d",
		tr.RunID(), seed, cfg.Loss, train.Len(), dsLen(valid), dsLen(test))

	finalLoss, finalAcc, err := tr.Train(ctx)
	if err != nil {
		return err
	}
	log.Printf("run=%s seed=%d final_loss=%v final_acc=%.4f", tr.RunID(), seed, finalLoss, finalAcc)
	return nil
}

func dsLen(d *spike.Dataset) int {
	if d == nil {
		return 0
	}
	return d.Len()
}
