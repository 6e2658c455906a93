package templates

const PlotTemplate = `% Generated on {{.GeneratedDate}}
%
{{- if .SweepID}}
% Sweep ID: {{.SweepID}}
{{- end}}
% Sweep: {{.SweepName}}
{{- if .Kind}}
% Kind: {{.Kind}}
{{- end}}
{{- if .Iterations}}
% Iterations: {{.Iterations}} per point
{{- end}}
{{- if .SweepStarted}}
% Started: {{.SweepStarted}}
% Finished: {{.SweepFinished}}
{{- end}}
{{- if .Hostname}}
%
% Host Information:
% Hostname: {{.Hostname}}
% CPU: {{.CPUVendor}} {{.CPUModel}}
% Kernel: {{.KernelVersion}}
% OS: {{.OSInfo}}
% IOAM node ID: {{.IOAMNodeID}}
{{- end}}
%
% Missing cells: {{.Missing}}
%
\begin{tikzpicture}
	\begin{axis}[
		{{if .Title}}title={ {{.Title}} },{{else}}% title={},{{end}}
		xlabel={ {{.XLabel}} },
		ylabel={ {{.YLabel}} },
		width=\textwidth,
		height=0.5\textwidth,
		xtick={ {{.XTicks}} },
		xticklabels={ {{.XTickLabels}} },
		xmin={{.XMin}}, xmax={{.XMax}},
		{{if .YMin}}ymin={{.YMin}}, ymax={{.YMax}},{{else}}% ymin=auto, ymax=auto,{{end}}
		ymajorgrids,
		grid style=dashed,
		legend columns=2,
		legend pos=south west,
		legend style={font=\scriptsize, column sep=6pt},
	]

{{range .Plots}}
% Variant: {{.Variant}} (column {{.Column}})
\addplot+[{{.Style}}]
  coordinates {
{{range .Coordinates}}    {{.}}
{{end}}  };
\addlegendentry{ {{.LegendEntry}} }

{{end}}
{{- if .Baseline}}
% Baseline
\addplot[{{.BaselineStyle}},domain={{.XMin}}:{{.XMax}}] { {{.Baseline}} };
\addlegendentry{ Baseline }
{{end}}
	\end{axis}
\end{tikzpicture}
`

type PlotData struct {
	GeneratedDate string
	SweepID       string
	SweepName     string
	Kind          string
	Iterations    int
	SweepStarted  string
	SweepFinished string
	Hostname      string
	CPUVendor     string
	CPUModel      string
	KernelVersion string
	OSInfo        string
	IOAMNodeID    string
	Missing       int
	Title         string
	XLabel        string
	YLabel        string
	XTicks        string
	XTickLabels   string
	XMin          string
	XMax          string
	YMin          string
	YMax          string
	Baseline      string
	BaselineStyle string
	Plots         []PlotSeries
}

type PlotSeries struct {
	Column      int
	Variant     string
	Style       string
	LegendEntry string
	Coordinates []string
}
