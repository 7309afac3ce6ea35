// -----------------------------------------------------------------------
// Command Processor - Runs an external command per job
// Default Processor binding for cmd/curo; any Processor may replace it
// -----------------------------------------------------------------------

package processing

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
)

// CommandProcessor shells out to a configured command template for each job,
// substituting {input} with the job's file name and {output} with a path under
// the output directory. Progress is coarse: 10 once the command starts, 100 on
// completion. The command's exit status decides success or failure.
type CommandProcessor struct {
	command   string
	outputDir string
	logger    arbor.ILogger
}

var _ interfaces.Processor = (*CommandProcessor)(nil)

// NewCommandProcessor creates a processor from the processing config section.
// An empty command template is allowed; jobs then fail at execution time with
// a configuration error, while the tracking API stays fully available.
func NewCommandProcessor(config common.ProcessingConfig, logger arbor.ILogger) (*CommandProcessor, error) {
	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &CommandProcessor{
		command:   config.Command,
		outputDir: config.OutputDir,
		logger:    logger,
	}, nil
}

// Process runs the configured command for the job and returns the output path.
func (p *CommandProcessor) Process(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
	if strings.TrimSpace(p.command) == "" {
		return "", fmt.Errorf("processing command is not configured")
	}

	outputPath := filepath.Join(p.outputDir, job.ID+filepath.Ext(job.FileName))

	line := strings.ReplaceAll(p.command, "{input}", job.FileName)
	line = strings.ReplaceAll(line, "{output}", outputPath)

	args := strings.Fields(line)
	if len(args) == 0 {
		return "", fmt.Errorf("processing command is empty after substitution")
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("command", args[0]).
		Msg("Running processing command")

	report(10)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	report(100)
	return outputPath, nil
}
