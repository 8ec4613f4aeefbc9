package app

import (
	"log"

	"github.com/cequencer/TriCRF/alg/crf"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

// CRFPretrain runs the pseudo-likelihood trainer, optionally followed by
// full forward-backward training on the warmed-up weights.
func CRFPretrain(cmd *commander.Command, args []string) error {
	REQUIRED_FLAGS := []string{"t", "m"}
	VerifyFlags(cmd, REQUIRED_FLAGS)
	if allOut {
		TrainConfigOut("PL")
	}
	if !VerifyExists(trainFile) {
		return nil
	}
	if len(devFile) > 0 && !VerifyExists(devFile) {
		return nil
	}

	model := crf.New()
	if err := loadTrainCorpora(model); err != nil {
		return err
	}
	if err := model.TrainPL(TrainOptions()); err != nil {
		return err
	}
	if ThenIterations > 0 {
		opts := TrainOptions()
		opts.MaxIter = ThenIterations
		if err := model.TrainLBFGS(opts); err != nil {
			return err
		}
	}
	if model.NumericWarnings > 0 {
		log.Println("Numeric warnings during training:", model.NumericWarnings)
	}
	if allOut {
		log.Println("[Model saving]")
	}
	return model.SaveModel(modelFile)
}

func PretrainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       CRFPretrain,
		UsageLine: "pretrain <file options> [arguments]",
		Short:     "pretrains a CRF model with pseudo-likelihood",
		Long: `
pretrains a CRF model with pseudo-likelihood, optionally followed by full training

	$ ./tricrf pretrain -t <train data> [-d <dev data>] -m <model> [-then <iterations>] [options]

`,
		Flag: *flag.NewFlagSet("pretrain", flag.ExitOnError),
	}
	trainFlags(cmd)
	cmd.Flag.IntVar(&ThenIterations, "then", 0, "Full training iterations after pretraining")
	return cmd
}
