package rodriver

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pevans/newscrawl/driver"
)

// Element wraps a rod element.
type Element struct {
	el *rod.Element
}

func wrapAll(found rod.Elements) []driver.Element {
	elements := make([]driver.Element, 0, len(found))
	for _, el := range found {
		elements = append(elements, &Element{el: el})
	}
	return elements
}

func (e *Element) FindElement(selector string) (driver.Element, error) {
	has, el, err := e.el.Has(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if !has {
		return nil, driver.NotFound(selector)
	}
	return &Element{el: el}, nil
}

func (e *Element) FindElements(selector string) ([]driver.Element, error) {
	found, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return wrapAll(found), nil
}

// Attribute reads href and src as DOM properties so they come back
// absolute, and everything else as plain attributes.
func (e *Element) Attribute(name string) (string, bool, error) {
	if name == "href" || name == "src" {
		prop, err := e.el.Property(name)
		if err != nil {
			return "", false, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if prop.Nil() || prop.Str() == "" {
			return "", false, nil
		}
		return prop.Str(), true, nil
	}

	value, err := e.el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *Element) Text() (string, error) {
	return e.el.Text()
}

func (e *Element) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *Element) InputText(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}
	return e.el.Input(text)
}

func (e *Element) SelectOption(visibleText string) error {
	if err := e.el.Select([]string{visibleText}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("%w: %s: %v", driver.ErrOptionNotFound, visibleText, err)
	}
	return nil
}
