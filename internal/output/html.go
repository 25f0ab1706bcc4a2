package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/threshold"
)

// ThresholdSummary aggregates threshold results for the JSON and HTML reports.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

type ThresholdResultJSON struct {
	Target    string  `json:"target"`
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate,omitempty"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// SummarizeThresholds returns nil when there are no results.
func SummarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Target:    tr.Target,
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Run              RunInfo
	Targets          []metrics.Summary
	ThresholdSummary *ThresholdSummary
}

// GenerateHTMLReport writes a standalone HTML page with one section per target.
func GenerateHTMLReport(w io.Writer, info RunInfo, summaries []metrics.Summary, thresholdResults []threshold.Result) error {
	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Run:              info,
		Targets:          summaries,
		ThresholdSummary: SummarizeThresholds(thresholdResults),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"buckets":       metrics.FlattenBuckets,
		"friendlyClass": metrics.FriendlyClassName,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>chatcrank report</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            margin: 0;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
        }
        header {
            background: #1f2937;
            color: white;
            padding: 24px 32px;
            border-radius: 8px 8px 0 0;
        }
        header .meta {
            opacity: 0.85;
            font-size: 0.9rem;
        }
        .content {
            padding: 32px;
        }
        .section {
            margin-bottom: 36px;
        }
        .section h2 {
            border-bottom: 2px solid #e5e7eb;
            padding-bottom: 8px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 10px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-size: 0.85rem;
            text-transform: uppercase;
            color: #4b5563;
        }
        .badge {
            display: inline-block;
            padding: 2px 10px;
            border-radius: 10px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .breakdown {
            font-size: 0.85rem;
            color: #6c757d;
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>chatcrank load test report</h1>
            {{if .Run.Endpoint}}<div class="meta">Endpoint: {{.Run.Endpoint}}</div>{{end}}
            {{if .Run.RunID}}<div class="meta">Run: {{.Run.RunID}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}}</div>
        </header>

        <div class="content">
            <div class="section">
                <h2>Targets</h2>
                {{if .Targets}}
                <table>
                    <thead>
                        <tr>
                            <th>Target</th>
                            <th>Total</th>
                            <th>Success</th>
                            <th>Failed</th>
                            <th>Cancelled</th>
                            <th>Error %</th>
                            <th>Req/s</th>
                            <th>Avg ms</th>
                            <th>Min ms</th>
                            <th>Max ms</th>
                            <th>P50 ms</th>
                            <th>P90 ms</th>
                            <th>P99 ms</th>
                            <th>Duration</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Targets}}
                        <tr>
                            <td><strong>{{.Target}}</strong></td>
                            <td>{{.Total}}</td>
                            <td>{{.Successes}}</td>
                            <td>{{.Failures}}</td>
                            <td>{{.Cancelled}}</td>
                            <td>{{formatFloat .ErrorPercentage}}</td>
                            <td>{{formatFloat .RequestsPerSec}}</td>
                            <td>{{formatFloat .MeanLatencyMs}}</td>
                            <td>{{formatFloat .MinLatencyMs}}</td>
                            <td>{{formatFloat .MaxLatencyMs}}</td>
                            <td>{{formatFloat .P50LatencyMs}}</td>
                            <td>{{formatFloat .P90LatencyMs}}</td>
                            <td>{{formatFloat .P99LatencyMs}}</td>
                            <td>{{formatDuration .Elapsed}}</td>
                        </tr>
                        {{if or .FailuresByClass .StatusCodes}}
                        <tr>
                            <td></td>
                            <td colspan="13" class="breakdown">
                                {{range buckets .FailuresByClass}}{{friendlyClass .Label}}: {{.Count}} &nbsp; {{end}}
                                {{range buckets .StatusCodes}}HTTP {{.Label}}: {{.Count}} &nbsp; {{end}}
                            </td>
                        </tr>
                        {{end}}
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <p>No targets were run.</p>
                {{end}}
            </div>

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Target</th>
                            <th>Threshold</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Target}}</td>
                            <td>{{.Threshold}}</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">PASS</span>
                                {{else}}
                                <span class="badge badge-error">FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
