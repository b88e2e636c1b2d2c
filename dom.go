package sheetsync

import (
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

const fieldAttr = "data-field"
const beyondMaxClass = "beyond-max"

// HtmlSurface is a control surface backed by a parsed HTML page.
// Controls are the elements carrying a data-field attribute, in document
// order. Values, disabled state, the beyond-max marker and positioning
// styles round-trip through the element's attributes, so an applied
// snapshot renders back out as markup.
type HtmlSurface struct {
	stateLock sync.Mutex
	doc       *html.Node
	controls  []Control
}

func ParseHtmlSurface(r io.Reader) (*HtmlSurface, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	surface := &HtmlSurface{
		doc: doc,
	}
	surface.controls = surface.scanControls()
	return surface, nil
}

func (self *HtmlSurface) Controls() []Control {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	controls := make([]Control, len(self.controls))
	copy(controls, self.controls)
	return controls
}

// Rescan re-walks the node tree. Call after inserting control wrappers.
func (self *HtmlSurface) Rescan() {
	controls := self.scanControls()
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.controls = controls
}

func (self *HtmlSurface) Render(w io.Writer) error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return html.Render(w, self.doc)
}

func (self *HtmlSurface) scanControls() []Control {
	controls := []Control{}
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if key := getAttr(node, fieldAttr); key != "" {
				kind := ControlKindText
				if node.Data == "input" && strings.EqualFold(getAttr(node, "type"), "checkbox") {
					kind = ControlKindCheckbox
				}
				controls = append(controls, &HtmlControl{
					surface:         self,
					node:            node,
					key:             key,
					kind:            kind,
					changeCallbacks: NewCallbackList[ChangeFunction](),
				})
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(self.doc)
	return controls
}

type HtmlControl struct {
	surface *HtmlSurface
	node    *html.Node
	key     string
	kind    ControlKind

	changeCallbacks *CallbackList[ChangeFunction]
}

func (self *HtmlControl) Key() string {
	return self.key
}

func (self *HtmlControl) Kind() ControlKind {
	return self.kind
}

func (self *HtmlControl) Value() Value {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	if self.kind == ControlKindCheckbox {
		return BoolValue(hasAttr(self.node, "checked"))
	}
	return TextValue(getAttr(self.node, "value"))
}

func (self *HtmlControl) SetValue(value Value) {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	if self.kind == ControlKindCheckbox {
		if value.Checked() {
			setAttr(self.node, "checked", "checked")
		} else {
			removeAttr(self.node, "checked")
		}
	} else {
		setAttr(self.node, "value", value.Text())
	}
}

func (self *HtmlControl) Edit(value Value) {
	self.SetValue(value)
	for _, changeCallback := range self.changeCallbacks.Get() {
		HandleError(changeCallback)
	}
}

func (self *HtmlControl) Disabled() bool {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	return hasAttr(self.node, "disabled")
}

func (self *HtmlControl) SetDisabled(disabled bool) {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	if disabled {
		setAttr(self.node, "disabled", "disabled")
	} else {
		removeAttr(self.node, "disabled")
	}
}

func (self *HtmlControl) Marked() bool {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	return hasClass(self.node, beyondMaxClass)
}

func (self *HtmlControl) SetMarked(marked bool) {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	if marked {
		addClass(self.node, beyondMaxClass)
	} else {
		removeClass(self.node, beyondMaxClass)
	}
}

func (self *HtmlControl) Style(name string) string {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	return parseStyle(getAttr(self.node, "style"))[name]
}

func (self *HtmlControl) SetStyle(name string, value string) {
	self.surface.stateLock.Lock()
	defer self.surface.stateLock.Unlock()
	styles := parseStyle(getAttr(self.node, "style"))
	order := styleOrder(getAttr(self.node, "style"))
	if value == "" {
		delete(styles, name)
	} else {
		if _, ok := styles[name]; !ok {
			order = append(order, name)
		}
		styles[name] = value
	}
	setAttr(self.node, "style", serializeStyle(styles, order))
}

func (self *HtmlControl) AddChangeListener(changeCallback ChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func getAttr(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(node *html.Node, name string) bool {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return true
		}
	}
	return false
}

func setAttr(node *html.Node, name string, value string) {
	for i := range node.Attr {
		if node.Attr[i].Key == name {
			node.Attr[i].Val = value
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{
		Key: name,
		Val: value,
	})
}

func removeAttr(node *html.Node, name string) {
	attrs := node.Attr[:0]
	for _, attr := range node.Attr {
		if attr.Key != name {
			attrs = append(attrs, attr)
		}
	}
	node.Attr = attrs
}

func hasClass(node *html.Node, class string) bool {
	for _, token := range strings.Fields(getAttr(node, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

func addClass(node *html.Node, class string) {
	if hasClass(node, class) {
		return
	}
	tokens := strings.Fields(getAttr(node, "class"))
	tokens = append(tokens, class)
	setAttr(node, "class", strings.Join(tokens, " "))
}

func removeClass(node *html.Node, class string) {
	tokens := []string{}
	for _, token := range strings.Fields(getAttr(node, "class")) {
		if token != class {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		removeAttr(node, "class")
	} else {
		setAttr(node, "class", strings.Join(tokens, " "))
	}
}

func parseStyle(style string) map[string]string {
	styles := map[string]string{}
	for _, declaration := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(declaration, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			styles[name] = value
		}
	}
	return styles
}

func styleOrder(style string) []string {
	order := []string{}
	for _, declaration := range strings.Split(style, ";") {
		name, _, ok := strings.Cut(declaration, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name != "" {
			order = append(order, name)
		}
	}
	return order
}

func serializeStyle(styles map[string]string, order []string) string {
	declarations := []string{}
	for _, name := range order {
		if value, ok := styles[name]; ok {
			declarations = append(declarations, name+": "+value)
		}
	}
	return strings.Join(declarations, "; ")
}
