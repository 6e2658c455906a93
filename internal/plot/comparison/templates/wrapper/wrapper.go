package templates

const WrapperTemplate = `% Generated on {{.GeneratedDate}}
% Sweep: {{.SweepName}}
\begin{center}
    \begin{figure}[H]
    \centering
    \resizebox{1\linewidth}{!}{\input{./{{.PlotFileName}} }}
    \caption[{{.ShortCaption}}]{ {{.Caption}} }
    \label{fig:sweep-{{.Label}}}
    \end{figure}
\end{center}
`

type WrapperData struct {
	GeneratedDate string
	SweepName     string
	PlotFileName  string
	ShortCaption  string
	Caption       string
	Label         string
}
