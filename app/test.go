package app

import (
	"log"

	"github.com/cequencer/TriCRF/alg/crf"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func CRFTest(cmd *commander.Command, args []string) error {
	REQUIRED_FLAGS := []string{"m", "in"}
	VerifyFlags(cmd, REQUIRED_FLAGS)
	if !VerifyExists(modelFile) || !VerifyExists(inputFile) {
		return nil
	}

	model := crf.New()
	if allOut {
		log.Println("[Model loading]")
	}
	if err := model.LoadModel(modelFile); err != nil {
		return err
	}
	if allOut {
		log.Println("[Testing begins ...]")
	}
	return model.Test(inputFile, outputFile, confidence, marginals)
}

func TestCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       CRFTest,
		UsageLine: "test <file options> [arguments]",
		Short:     "labels a test file with a trained CRF model",
		Long: `
labels a test file with a trained CRF model and reports accuracy and F1

	$ ./tricrf test -m <model> -in <test data> [-o <output>] [-conf|-marginal]

`,
		Flag: *flag.NewFlagSet("test", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&modelFile, "m", "", "Model File")
	cmd.Flag.StringVar(&inputFile, "in", "", "Test Data File")
	cmd.Flag.StringVar(&outputFile, "o", "", "Optional - Output File (one label per line)")
	cmd.Flag.BoolVar(&confidence, "conf", false, "Emit local confidence next to each label")
	cmd.Flag.BoolVar(&marginals, "marginal", false, "Emit true marginal posteriors next to each label")
	return cmd
}
