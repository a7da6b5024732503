package notify

import (
	"fmt"

	"github.com/google/uuid"
	goslack "github.com/slack-go/slack"

	"github.com/captely/core/internal/db"
)

func lowCreditBlocks(userID uuid.UUID, remaining float64) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "⚠️ Low Credit Balance", true, false),
	)
	section := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("User `%s` has *%.2f* credits remaining.", userID, remaining), false, false),
		nil, nil,
	)
	return []goslack.Block{header, section}
}

func jobCompletedBlocks(jobID uuid.UUID, state db.JobState) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s Job Finished", stateEmoji(state)), true, false),
	)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Job:* `%s`", jobID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*State:* %s", state), false, false),
	}
	section := goslack.NewSectionBlock(nil, fields, nil)
	return []goslack.Block{header, section}
}
