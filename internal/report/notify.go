package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/ase-101/hackathon/internal/migrate"
)

type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	sns      PublishAPI
	topicArn string
}

func NewNotifier(api PublishAPI, topicArn string) *Notifier {
	return &Notifier{sns: api, topicArn: topicArn}
}

// Notify publishes a plain-text summary of the run.
func (n *Notifier) Notify(ctx context.Context, spreadsheetID string, sum migrate.Summary, manifestKey string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(Subject(sum)),
		Message:  aws.String(Message(spreadsheetID, sum, manifestKey)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// Subject stays under the 100 character SNS limit.
func Subject(sum migrate.Summary) string {
	switch {
	case sum.Aborted:
		return "Submission migration aborted"
	case sum.Failed > 0:
		return fmt.Sprintf("Submission migration finished with %d failed rows", sum.Failed)
	default:
		return "Submission migration finished"
	}
}

func Message(spreadsheetID string, sum migrate.Summary, manifestKey string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spreadsheet: %s\n", spreadsheetID)
	fmt.Fprintf(&b, "Data rows: %d\n", sum.DataRows)
	fmt.Fprintf(&b, "Migrated: %d\n", sum.Migrated)
	fmt.Fprintf(&b, "Skipped: %d\n", sum.Skipped)
	fmt.Fprintf(&b, "Failed: %d\n", sum.Failed)
	if sum.Planned > 0 {
		fmt.Fprintf(&b, "Planned (dry run): %d\n", sum.Planned)
	}
	if sum.Aborted {
		b.WriteString("The run stopped before reaching the last row.\n")
	}

	var failed []string
	for _, o := range sum.Objects {
		if o.Status == migrate.ObjectFailed {
			failed = append(failed, fmt.Sprintf("  row %d %s: %s", o.Row, o.SourceKey, o.Error))
		}
	}
	if len(failed) > 0 {
		b.WriteString("Failed objects:\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}
	if manifestKey != "" {
		fmt.Fprintf(&b, "Manifest: %s\n", manifestKey)
	}
	return b.String()
}
