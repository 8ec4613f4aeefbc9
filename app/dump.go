package app

import (
	"os"

	"github.com/cequencer/TriCRF/alg/crf"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func CRFDump(cmd *commander.Command, args []string) error {
	REQUIRED_FLAGS := []string{"m"}
	VerifyFlags(cmd, REQUIRED_FLAGS)
	if !VerifyExists(modelFile) {
		return nil
	}

	model := crf.New()
	if err := model.LoadModel(modelFile); err != nil {
		return err
	}
	model.Param.Dump(os.Stdout)
	return nil
}

func DumpCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       CRFDump,
		UsageLine: "dump <file options>",
		Short:     "dumps a model file in human-readable form",
		Long: `
dumps a model file in human-readable form

	$ ./tricrf dump -m <model>

`,
		Flag: *flag.NewFlagSet("dump", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&modelFile, "m", "", "Model File")
	return cmd
}
