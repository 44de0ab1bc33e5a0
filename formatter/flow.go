package formatter

// FlowIssueFormatter adds the steps leading to the issue after the message.
type FlowIssueFormatter struct{}

func (f *FlowIssueFormatter) IssueTemplate() string {
	return `{{header .Rule .Severity .MaxLineNumWidth .Filename .StartLine .StartColumn -}}
{{snippet .SnippetLines .StartLine .EndLine .MaxLineNumWidth .CommonIndent .Padding -}}
{{underlineAndMessage .Message .Padding .StartLine .EndLine .StartColumn .EndColumn .SnippetLines .CommonIndent -}}
{{note .Note .Padding -}}
{{flows .Flows .Padding}}
`
}
