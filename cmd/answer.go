package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
)

const (
	PromptSkip = "Skip"
	PromptStop = "Stop and save"
)

var errStop = errors.New("stop requested")

// answerChoices lists the scale from most to least keen, as the quiz shows it.
var answerChoices = []struct {
	Label string
	Value matching.Value
}{
	{"5 - Enthusiastic", matching.Enthusiastic},
	{"4 - Yes", matching.Yes},
	{"3 - Maybe", matching.Maybe},
	{"2 - Rather not", matching.RatherNot},
	{"1 - Never", matching.Never},
}

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Take the quiz in the terminal and save the answers to a file",
	Run: func(cmd *cobra.Command, _ []string) {
		answer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().StringP("out", "o", "answers.json", "file to write the answers to")
	answerCmd.Flags().BoolP("quick", "q", false, "answer the short version of the quiz")
	answerCmd.Flags().String("catalog", "", "catalog file, overrides the catalog key")
}

func answer(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	catalogFile := viper.GetString("catalog")
	if f := cmd.Flag("catalog").Value.String(); f != "" {
		catalogFile = f
	}

	quiz, err := loadCatalog(catalogFile, cmd.Flag("quick").Value.String() == "true")
	if err != nil {
		logger.Fatal("loading catalog", zap.Error(err))
	}

	logger.Info("starting the quiz", zap.Int("questions", quiz.Len()))

	answers, err := askAll(quiz, promptAnswer)
	if err != nil && !errors.Is(err, errStop) {
		logger.Fatal("exiting", zap.Error(err))
	}

	out := cmd.Flag("out").Value.String()
	data, _ := json.MarshalIndent(answers, "", "  ")
	if err := os.WriteFile(out, data, 0o600); err != nil {
		logger.Fatal("writing answers", zap.Error(err), zap.String("filename", out))
	}

	logger.Info("answers saved", zap.String("filename", out), zap.Int("answered", len(answers)))
}

// askFunc asks one question. ok is false when the question was skipped.
type askFunc func(q catalog.Question, cat catalog.Category, n, total int) (v matching.Value, ok bool, err error)

// askAll walks the catalog in order. Answers given before a stop are kept.
func askAll(c *catalog.Catalog, ask askFunc) (matching.Answers, error) {
	answers := matching.Answers{}
	n, total := 0, c.Len()

	for _, cat := range c.Categories() {
		for _, q := range cat.Questions {
			n++
			v, ok, err := ask(q, cat, n, total)
			if err != nil {
				return answers, err
			}
			if ok {
				answers[q.ID] = v
			}
		}
	}
	return answers, nil
}

func promptAnswer(q catalog.Question, cat catalog.Category, n, total int) (matching.Value, bool, error) {
	items := make([]string, 0, len(answerChoices)+2)
	for _, choice := range answerChoices {
		items = append(items, choice.Label)
	}
	items = append(items, PromptSkip, PromptStop)

	prompt := promptui.Select{
		Label: fmt.Sprintf("[%d/%d] %s %s: %s", n, total, cat.Emoji, cat.ID, q.ID),
		Items: items,
		Size:  len(items),
	}

	idx, selected, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return matching.Unanswered, false, errStop
		}
		return matching.Unanswered, false, err
	}

	switch selected {
	case PromptSkip:
		return matching.Unanswered, false, nil
	case PromptStop:
		return matching.Unanswered, false, errStop
	default:
		return answerChoices[idx].Value, true, nil
	}
}
