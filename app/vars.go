package app

import (
	"log"
	"os"

	"github.com/cequencer/TriCRF/alg/crf"

	"github.com/gonuts/commander"
)

var (
	allOut bool = true

	// processing options
	Iterations     int
	ThenIterations int
	sigma          float64
	regKind        string
	eta            float64

	// file names
	trainFile  string
	devFile    string
	inputFile  string
	outputFile string
	modelFile  string

	confidence bool
	marginals  bool
)

func VerifyExists(filename string) bool {
	_, err := os.Stat(filename)
	if err != nil {
		log.Println("Error accessing file", filename)
		log.Println(err)
		return false
	}
	return true
}

func VerifyFlags(cmd *commander.Command, required []string) {
	for _, flag := range required {
		f := cmd.Flag.Lookup(flag)
		if f.Value.String() == "" {
			log.Printf("Required flag %s not set", f.Name)
			cmd.Usage()
			os.Exit(1)
		}
	}
}

func RegKind() crf.Regularization {
	switch regKind {
	case "l1", "L1":
		return crf.RegL1
	case "l2", "L2":
		return crf.RegL2
	case "", "none":
		return crf.RegNone
	}
	log.Fatalln("Unknown regularization kind", regKind)
	return crf.RegNone
}

func TrainOptions() crf.TrainOptions {
	return crf.TrainOptions{
		MaxIter: Iterations,
		Sigma:   sigma,
		Reg:     RegKind(),
		Eta:     eta,
	}
}
