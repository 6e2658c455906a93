package mappings

type PlotStyle struct {
	Color       string
	LineStyle   string
	LineWidth   string
	Mark        string
	MarkOptions string
}

// VariantStyles cycles through distinct colors first, then line styles.
var VariantStyles = []PlotStyle{
	{Color: "blue", LineStyle: "solid", LineWidth: "thick", Mark: "*", MarkOptions: "scale=0.6,fill=blue"},
	{Color: "orange", LineStyle: "densely dashed", LineWidth: "thick", Mark: "square*", MarkOptions: "scale=0.5,fill=orange"},
	{Color: "green!60!black", LineStyle: "densely dotted", LineWidth: "thick", Mark: "triangle*", MarkOptions: "scale=0.6,fill=green!60!black"},
	{Color: "purple", LineStyle: "dashdotted", LineWidth: "thick", Mark: "diamond*", MarkOptions: "scale=0.6,fill=purple"},
	{Color: "brown", LineStyle: "loosely dashed", LineWidth: "thick", Mark: "pentagon*", MarkOptions: "scale=0.6,fill=brown"},
	{Color: "cyan!70!black", LineStyle: "solid", LineWidth: "thick", Mark: "o", MarkOptions: "scale=0.6"},
	{Color: "magenta", LineStyle: "densely dashed", LineWidth: "thick", Mark: "x", MarkOptions: "scale=0.7"},
	{Color: "black", LineStyle: "densely dotted", LineWidth: "thick", Mark: "star", MarkOptions: "scale=0.7"},

	{Color: "blue", LineStyle: "dashed", LineWidth: "thick", Mark: "o", MarkOptions: "scale=0.6"},
	{Color: "orange", LineStyle: "dotted", LineWidth: "thick", Mark: "square", MarkOptions: "scale=0.5"},
	{Color: "green!60!black", LineStyle: "dashed", LineWidth: "thick", Mark: "triangle", MarkOptions: "scale=0.6"},
	{Color: "purple", LineStyle: "dotted", LineWidth: "thick", Mark: "diamond", MarkOptions: "scale=0.6"},
}

// BaselineStyle draws the reference rate without markers.
var BaselineStyle = PlotStyle{Color: "red", LineStyle: "solid", LineWidth: "thick", Mark: "none"}

func GetVariantStyle(index int) PlotStyle {
	if index < 0 {
		index = 0
	}
	return VariantStyles[index%len(VariantStyles)]
}

func (ps PlotStyle) ToTikzOptions() string {
	options := ps.Color
	if ps.LineStyle != "" {
		options += "," + ps.LineStyle
	}
	if ps.LineWidth != "" {
		options += "," + ps.LineWidth
	}
	if ps.Mark != "none" && ps.Mark != "" {
		options += ",mark=" + ps.Mark
		if ps.MarkOptions != "" {
			options += ",mark options={" + ps.MarkOptions + "}"
		}
	} else {
		options += ",mark=none"
	}
	return options
}

// WithErrorBars appends explicit symmetric y error bars to the options.
func (ps PlotStyle) WithErrorBars() string {
	return ps.ToTikzOptions() + ",error bars/.cd,y dir=both,y explicit"
}
