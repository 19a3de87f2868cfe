package generator

import (
	"log/slog"
	"regexp"

	"github.com/oarkflow/clusterviz/pkg/cluster"
)

// benign warnings are expected for this dataset and only logged at debug.
var benign = []*regexp.Regexp{
	regexp.MustCompile(`^the number of connected components of the connectivity matrix is [0-9]+ > 1\. Completing it to avoid stopping the tree early\.$`),
	regexp.MustCompile(`^Graph is not fully connected, spectral embedding may not work as expected\.$`),
}

func isBenign(msg string) bool {
	for _, re := range benign {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

func warningLogger(log *slog.Logger) cluster.WarningSink {
	return func(w cluster.Warning) {
		if isBenign(w.Message) {
			log.Debug("strategy warning", "strategy", w.Strategy, "warning", w.Message)
			return
		}
		log.Warn("strategy warning", "strategy", w.Strategy, "warning", w.Message)
	}
}
