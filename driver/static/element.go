package static

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newscrawl/driver"
)

// Element is a node of the session's current document.
type Element struct {
	session *Session
	sel     *goquery.Selection
}

func wrapAll(s *Session, sel *goquery.Selection) []driver.Element {
	elements := make([]driver.Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		elements = append(elements, &Element{session: s, sel: item})
	})
	return elements
}

func (e *Element) FindElement(selector string) (driver.Element, error) {
	found := e.sel.Find(selector)
	if found.Length() == 0 {
		return nil, driver.NotFound(selector)
	}
	return &Element{session: e.session, sel: found.First()}, nil
}

func (e *Element) FindElements(selector string) ([]driver.Element, error) {
	return wrapAll(e.session, e.sel.Find(selector)), nil
}

func (e *Element) Attribute(name string) (string, bool, error) {
	value, ok := e.sel.Attr(name)
	if !ok {
		return "", false, nil
	}
	if name == "href" || name == "src" {
		abs, err := e.session.resolve(value)
		if err != nil {
			return "", true, err
		}
		return abs, true, nil
	}
	return value, true, nil
}

// Text returns the element text with whitespace collapsed.
func (e *Element) Text() (string, error) {
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

// Click follows links, submits forms and toggles checkboxes. Clicking
// anything else is a no-op, since no script would react to it.
func (e *Element) Click() error {
	switch goquery.NodeName(e.sel) {
	case "a":
		href, ok, err := e.Attribute("href")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return e.session.load(context.Background(), http.MethodGet, href, nil)
	case "label":
		return e.clickLabel()
	case "input":
		switch strings.ToLower(e.sel.AttrOr("type", "text")) {
		case "checkbox", "radio":
			toggle(e.sel)
			return nil
		case "submit", "image":
			return e.submit()
		}
		return nil
	case "button":
		if strings.ToLower(e.sel.AttrOr("type", "submit")) == "submit" {
			return e.submit()
		}
		return nil
	}
	return nil
}

func (e *Element) clickLabel() error {
	var box *goquery.Selection
	if id, ok := e.sel.Attr("for"); ok && id != "" {
		box = e.session.doc.Find(fmt.Sprintf("[id=%q]", id))
	} else {
		box = e.sel.Find("input")
	}
	if box.Length() == 0 {
		return nil
	}
	toggle(box.First())
	return nil
}

func toggle(box *goquery.Selection) {
	if _, checked := box.Attr("checked"); checked {
		box.RemoveAttr("checked")
		return
	}
	box.SetAttr("checked", "checked")
}

func (e *Element) InputText(text string) error {
	switch goquery.NodeName(e.sel) {
	case "input":
		e.sel.SetAttr("value", text)
	case "textarea":
		e.sel.SetText(text)
	default:
		return fmt.Errorf("cannot type into <%s>", goquery.NodeName(e.sel))
	}
	return nil
}

// SelectOption marks the option whose visible text matches and submits the
// enclosing form, the way search pages wire their sort control.
func (e *Element) SelectOption(visibleText string) error {
	if goquery.NodeName(e.sel) != "select" {
		return fmt.Errorf("cannot select an option of <%s>", goquery.NodeName(e.sel))
	}

	var match *goquery.Selection
	e.sel.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		if strings.TrimSpace(opt.Text()) == visibleText {
			match = opt
			return false
		}
		return true
	})
	if match == nil {
		return fmt.Errorf("%w: %s", driver.ErrOptionNotFound, visibleText)
	}

	e.sel.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")

	if e.sel.Closest("form").Length() == 0 {
		return nil
	}
	return e.submit()
}

// submit sends the form enclosing e, including e itself when it is a named
// submit control.
func (e *Element) submit() error {
	form := e.sel.Closest("form")
	if form.Length() == 0 {
		return nil
	}

	action := e.session.URL()
	if a, ok := form.Attr("action"); ok && a != "" {
		resolved, err := e.session.resolve(a)
		if err != nil {
			return err
		}
		action = resolved
	}

	values := formValues(form)
	if name, ok := e.sel.Attr("name"); ok && name != "" && goquery.NodeName(e.sel) != "select" {
		values.Set(name, e.sel.AttrOr("value", ""))
	}

	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		return e.session.load(context.Background(), http.MethodPost, action, values)
	}

	target, err := url.Parse(action)
	if err != nil {
		return fmt.Errorf("invalid form action %q: %w", action, err)
	}
	target.RawQuery = values.Encode()
	return e.session.load(context.Background(), http.MethodGet, target.String(), nil)
}

// formValues collects the successful controls of form.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "select":
			opt := field.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = field.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		case "textarea":
			values.Add(name, field.Text())
		default:
			switch strings.ToLower(field.AttrOr("type", "text")) {
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); checked {
					values.Add(name, field.AttrOr("value", "on"))
				}
			case "submit", "button", "image", "reset":
			default:
				values.Add(name, field.AttrOr("value", ""))
			}
		}
	})
	return values
}
