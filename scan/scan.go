// Package scan detects likely secrets in patch text before it is replicated
// onto other branches. Replication multiplies a leaked credential across every
// local branch, so the run command surfaces findings for confirmation first.
package scan

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// secretPattern matches high-entropy strings that may be secrets.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a string to be considered
// a secret. 4.5 was chosen through trial and error: high enough to avoid false
// positives on common words and identifiers, low enough to catch typical API keys
// and tokens which tend to have entropy well above 5.0.
const entropyThreshold = 4.5

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

// Finding is one suspected secret in scanned text.
type Finding struct {
	// Secret is the matched text, truncated for display.
	Secret string

	// Rule names the detection that fired: "entropy" or a gitleaks rule ID.
	Rule string

	// Line is the 1-based line number in the scanned text.
	Line int
}

// displayLimit truncates matched secrets so findings can be printed without
// echoing the full credential back to the terminal.
const displayLimit = 12

func truncate(s string) string {
	if len(s) <= displayLimit {
		return s
	}
	return s[:displayLimit] + "..."
}

// Patch scans patch text using layered detection:
// 1. Entropy-based: high-entropy alphanumeric sequences (threshold 4.5)
// 2. Pattern-based: gitleaks regex rules (180+ known secret formats)
// Only added lines (prefix "+") are scanned; context and removed lines are
// already in history and out of scope here. Findings are deduplicated by
// secret text and sorted by line.
func Patch(patch string) []Finding {
	seen := make(map[string]bool)
	var findings []Finding

	lines := strings.Split(patch, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		content := line[1:]

		// 1. Entropy-based detection.
		for _, match := range secretPattern.FindAllString(content, -1) {
			if shannonEntropy(match) > entropyThreshold && !seen[match] {
				seen[match] = true
				findings = append(findings, Finding{
					Secret: truncate(match),
					Rule:   "entropy",
					Line:   i + 1,
				})
			}
		}

		// 2. Pattern-based detection via gitleaks.
		if d := getDetector(); d != nil {
			for _, f := range d.DetectString(content) {
				if f.Secret == "" || seen[f.Secret] {
					continue
				}
				seen[f.Secret] = true
				findings = append(findings, Finding{
					Secret: truncate(f.Secret),
					Rule:   f.RuleID,
					Line:   i + 1,
				})
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Line < findings[j].Line
	})
	return findings
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
