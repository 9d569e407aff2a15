package scanning

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
)

// Injection report grammar:
//
//	report   = preamble "---" findings "---" trailer
//	findings = block { "\n\n" block }
//	block    = ... "Type: " text "\n" ws "Title: " text "\n" ws "Payload: " text "\n"
//
// Only the segment between the first two delimiters carries findings.
const (
	reportDelimiter = "---"
	blockSeparator  = "\n\n"
	findingsSegment = 1
)

var findingPattern = regexp.MustCompile(`Type:\s(.+?)\n\s*Title:\s(.+?)\n\s*Payload:\s(.+?)\n`)

// ParseInjectionReport converts the captured standard output of one injection
// tool run into findings, in block order with duplicates preserved.
//
// Parsing is all-or-nothing: a missing findings segment or any non-empty block
// without a Type/Title/Payload triple fails with ErrMalformedReport and no
// findings are returned.
func ParseInjectionReport(report string) ([]scanning.SqlFinding, error) {
	segments := strings.Split(report, reportDelimiter)
	if len(segments) <= findingsSegment {
		return nil, fmt.Errorf("%w: no %q delimited findings section", scanning.ErrMalformedReport, reportDelimiter)
	}

	blocks := strings.Split(segments[findingsSegment], blockSeparator)
	findings := make([]scanning.SqlFinding, 0, len(blocks))
	for i, block := range blocks {
		// Separator runs leave empty blocks behind, typically at the segment edges.
		if strings.TrimSpace(block) == "" {
			continue
		}

		m := findingPattern.FindStringSubmatch(block + "\n")
		if m == nil {
			return nil, fmt.Errorf("%w: block %d has no Type/Title/Payload triple", scanning.ErrMalformedReport, i)
		}

		findings = append(findings, scanning.SqlFinding{Type: m[1], Title: m[2], Payload: m[3]})
	}

	if len(findings) == 0 {
		return nil, fmt.Errorf("%w: findings section is empty", scanning.ErrMalformedReport)
	}

	return findings, nil
}
