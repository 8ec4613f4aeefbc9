package app

import (
	"log"

	"github.com/cequencer/TriCRF/alg/crf"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func TrainConfigOut(method string) {
	log.Println("Configuration")
	log.Printf("Method:\t\t\t%s", method)
	log.Printf("Iterations:\t\t%d", Iterations)
	log.Printf("Regularization:\t\t%s", RegKind())
	log.Printf("Sigma:\t\t\t%v", sigma)
	log.Printf("Eta:\t\t\t%v", eta)
	log.Println()
	log.Println("Data")
	log.Printf("Train file:\t\t\t%s", trainFile)
	if len(devFile) > 0 {
		log.Printf("Dev file:\t\t\t%s", devFile)
	}
	log.Printf("Model file:\t\t\t%s", modelFile)
}

func loadTrainCorpora(model *crf.CRF) error {
	if allOut {
		log.Println("[Training data file loading]")
	}
	if err := model.ReadTrainData(trainFile); err != nil {
		return err
	}
	if len(devFile) > 0 {
		if allOut {
			log.Println("[Dev data file loading]")
		}
		if err := model.ReadDevData(devFile); err != nil {
			return err
		}
	}
	return nil
}

func CRFTrain(cmd *commander.Command, args []string) error {
	REQUIRED_FLAGS := []string{"t", "m"}
	VerifyFlags(cmd, REQUIRED_FLAGS)
	if allOut {
		TrainConfigOut("LBFGS")
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
	if err := model.TrainLBFGS(TrainOptions()); err != nil {
		return err
	}
	if model.NumericWarnings > 0 {
		log.Println("Numeric warnings during training:", model.NumericWarnings)
	}
	if allOut {
		log.Println("[Model saving]")
	}
	return model.SaveModel(modelFile)
}

func trainFlags(cmd *commander.Command) {
	cmd.Flag.IntVar(&Iterations, "it", 100, "Maximum Number of Iterations")
	cmd.Flag.Float64Var(&sigma, "s", 0.0, "Penalty scale (L2 variance / inverse L1 strength; 0 = unregularized)")
	cmd.Flag.StringVar(&regKind, "r", "none", "Regularization kind (l1/l2/none)")
	cmd.Flag.Float64Var(&eta, "e", 1e-5, "Convergence tolerance (relative objective change)")
	cmd.Flag.StringVar(&trainFile, "t", "", "Training Data File")
	cmd.Flag.StringVar(&devFile, "d", "", "Optional - Dev Data File")
	cmd.Flag.StringVar(&modelFile, "m", "", "Output Model File")
}

func TrainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       CRFTrain,
		UsageLine: "train <file options> [arguments]",
		Short:     "trains a CRF model with forward-backward and L-BFGS",
		Long: `
trains a CRF model with forward-backward and L-BFGS

	$ ./tricrf train -t <train data> [-d <dev data>] -m <model> [options]

`,
		Flag: *flag.NewFlagSet("train", flag.ExitOnError),
	}
	trainFlags(cmd)
	return cmd
}
