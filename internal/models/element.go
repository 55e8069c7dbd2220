package models

// ElementType tags the kind of visual object an element renders as.
type ElementType string

const (
	ElementRect   ElementType = "rect"
	ElementCircle ElementType = "circle"
	ElementLine   ElementType = "line"
	ElementText   ElementType = "text"
	ElementImage  ElementType = "image"
)

// Geometry holds the spatial attributes of an element. Width/height apply
// to boxed shapes, points to lines.
type Geometry struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Width    float64   `json:"width,omitempty"`
	Height   float64   `json:"height,omitempty"`
	Points   []float64 `json:"points,omitempty"`
	Rotation float64   `json:"rotation,omitempty"`
	ScaleX   float64   `json:"scaleX,omitempty"`
	ScaleY   float64   `json:"scaleY,omitempty"`
}

// Style holds paint attributes.
type Style struct {
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Visible     bool    `json:"visible"`
	Draggable   bool    `json:"draggable"`
}

// TextAttrs holds the text payload for text elements.
type TextAttrs struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
}

// Element is one visual object on a canvas. The ID is unique within a
// document and immutable once created; paint order is the element's
// position in the replicated sequence.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	Geometry Geometry    `json:"geometry"`
	Style    Style       `json:"style"`
	Text     *TextAttrs  `json:"text,omitempty"`
	Src      string      `json:"src,omitempty"`
}

// ElementPatch is a partial element update. Nil fields are left untouched.
type ElementPatch struct {
	X           *float64   `json:"x,omitempty"`
	Y           *float64   `json:"y,omitempty"`
	Width       *float64   `json:"width,omitempty"`
	Height      *float64   `json:"height,omitempty"`
	Points      []float64  `json:"points,omitempty"`
	Rotation    *float64   `json:"rotation,omitempty"`
	ScaleX      *float64   `json:"scaleX,omitempty"`
	ScaleY      *float64   `json:"scaleY,omitempty"`
	Fill        *string    `json:"fill,omitempty"`
	Stroke      *string    `json:"stroke,omitempty"`
	StrokeWidth *float64   `json:"strokeWidth,omitempty"`
	Opacity     *float64   `json:"opacity,omitempty"`
	Visible     *bool      `json:"visible,omitempty"`
	Draggable   *bool      `json:"draggable,omitempty"`
	Text        *TextAttrs `json:"text,omitempty"`
	Src         *string    `json:"src,omitempty"`
}

// ApplyTo copies the set fields of the patch onto the element.
func (p *ElementPatch) ApplyTo(el *Element) {
	if p.X != nil {
		el.Geometry.X = *p.X
	}
	if p.Y != nil {
		el.Geometry.Y = *p.Y
	}
	if p.Width != nil {
		el.Geometry.Width = *p.Width
	}
	if p.Height != nil {
		el.Geometry.Height = *p.Height
	}
	if p.Points != nil {
		el.Geometry.Points = p.Points
	}
	if p.Rotation != nil {
		el.Geometry.Rotation = *p.Rotation
	}
	if p.ScaleX != nil {
		el.Geometry.ScaleX = *p.ScaleX
	}
	if p.ScaleY != nil {
		el.Geometry.ScaleY = *p.ScaleY
	}
	if p.Fill != nil {
		el.Style.Fill = *p.Fill
	}
	if p.Stroke != nil {
		el.Style.Stroke = *p.Stroke
	}
	if p.StrokeWidth != nil {
		el.Style.StrokeWidth = *p.StrokeWidth
	}
	if p.Opacity != nil {
		el.Style.Opacity = *p.Opacity
	}
	if p.Visible != nil {
		el.Style.Visible = *p.Visible
	}
	if p.Draggable != nil {
		el.Style.Draggable = *p.Draggable
	}
	if p.Text != nil {
		el.Text = p.Text
	}
	if p.Src != nil {
		el.Src = *p.Src
	}
}

// Metadata keys of the document's key/value map. Each key is independently
// last-write-wins.
const (
	MetaWidth           = "width"
	MetaHeight          = "height"
	MetaBackgroundColor = "backgroundColor"
	MetaZoom            = "zoom"
	MetaPanX            = "panX"
	MetaPanY            = "panY"
	MetaLastModified    = "lastModified"
	MetaLastModifiedBy  = "lastModifiedBy"
)

// CanvasMetadata is the flattened projection of the document metadata map.
type CanvasMetadata struct {
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	BackgroundColor string  `json:"backgroundColor"`
	Zoom            float64 `json:"zoom"`
	PanX            float64 `json:"panX"`
	PanY            float64 `json:"panY"`
	LastModified    int64   `json:"lastModified"`
	LastModifiedBy  string  `json:"lastModifiedBy,omitempty"`
}

// DefaultMetadata returns the metadata a canvas document starts with when
// no prior snapshot exists: 1080x1080, white background, zoom 1, origin pan.
func DefaultMetadata() CanvasMetadata {
	return CanvasMetadata{
		Width:           1080,
		Height:          1080,
		BackgroundColor: "#ffffff",
		Zoom:            1,
		PanX:            0,
		PanY:            0,
	}
}
