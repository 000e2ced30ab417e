package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/results"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compare two answer files offline and print the results",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("a", "", "answers of partner A (json file)")
	scoreCmd.Flags().String("b", "", "answers of partner B (json file)")
	scoreCmd.Flags().Bool("teaser", false, "show only the free teaser, as an unpaid couple would see it")
	scoreCmd.Flags().String("catalog", "", "catalog file, overrides the catalog key")

	scoreCmd.MarkFlagRequired("a")
	scoreCmd.MarkFlagRequired("b")
}

func readAnswers(path string) (matching.Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers file %q: %w", path, err)
	}

	var answers matching.Answers
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("parsing answers file %q: %w", path, err)
	}
	if answers == nil {
		answers = matching.Answers{}
	}
	return answers, nil
}

func score(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	catalogFile := config.Catalog
	if f := cmd.Flag("catalog").Value.String(); f != "" {
		catalogFile = f
	}

	quiz, err := loadCatalog(catalogFile, false)
	if err != nil {
		logger.Fatal("loading catalog", zap.Error(err))
	}

	a, err := readAnswers(cmd.Flag("a").Value.String())
	if err != nil {
		logger.Fatal("loading partner A answers", zap.Error(err))
	}
	b, err := readAnswers(cmd.Flag("b").Value.String())
	if err != nil {
		logger.Fatal("loading partner B answers", zap.Error(err))
	}

	res := scoreAnswers(quiz, a, b, config.Teaser, cmd.Flag("teaser").Value.String() == "true")

	logger.Debug("scored",
		zap.Int("answered_both", res.AnsweredBoth),
		zap.Int("matches", res.TotalMatches),
		zap.Int("locked", res.Locked),
	)

	pretty, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(pretty))
}

func scoreAnswers(c *catalog.Catalog, a, b matching.Answers, teaser results.Config, unpaid bool) results.Result {
	return results.Build(c, matching.Aggregate(c, a, b), !unpaid, teaser)
}
