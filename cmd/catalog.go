package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate a question catalog and print it",
	Run: func(cmd *cobra.Command, _ []string) {
		printCatalog(cmd)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringP("file", "f", "", "catalog file to validate, the built-in catalog when empty")
	catalogCmd.Flags().BoolP("quick", "q", false, "print the short version of the quiz")
}

type catalogDump struct {
	Categories []categoryDump `yaml:"categories"`
}

type categoryDump struct {
	ID        string   `yaml:"id"`
	Emoji     string   `yaml:"emoji"`
	Questions []string `yaml:"questions"`
}

// dumpCatalog renders c in the same shape catalog.Load reads.
func dumpCatalog(c *catalog.Catalog) ([]byte, error) {
	var dump catalogDump
	for _, cat := range c.Categories() {
		ids := make([]string, 0, len(cat.Questions))
		for _, q := range cat.Questions {
			ids = append(ids, q.ID)
		}
		dump.Categories = append(dump.Categories, categoryDump{ID: cat.ID, Emoji: cat.Emoji, Questions: ids})
	}
	return yaml.Marshal(dump)
}

func printCatalog(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	file := cmd.Flag("file").Value.String()
	quiz, err := loadCatalog(file, cmd.Flag("quick").Value.String() == "true")
	if err != nil {
		logger.Fatal("invalid catalog", zap.Error(err), zap.String("filename", file))
	}

	out, err := dumpCatalog(quiz)
	if err != nil {
		logger.Fatal("rendering catalog", zap.Error(err))
	}

	logger.Info("catalog is valid", zap.Int("categories", len(quiz.Categories())), zap.Int("questions", quiz.Len()))
	fmt.Print(string(out))
}
