package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
)

// errAborted is returned when the user interrupts the session
var errAborted = errors.New("aborted")

// lineReader is the part of *readline.Instance the builder uses
type lineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
}

type choice int

const (
	choiceYes choice = iota
	choiceNo
	choiceAll
	choiceQuit
)

// builder walks the compiled tools and collects the user's selection
type builder struct {
	in  lineReader
	out io.Writer

	routes       []adjuster.RouteSelection
	descriptions []adjuster.RouteDescription
}

// run asks about every tool. Answering "a" accepts the rest without
// further prompts; "q" or end of input keeps what was chosen so far.
func (b *builder) run(tools []openapi2mcp.CompiledTool) (adjuster.Adjustments, error) {
	all := false
	for i, t := range tools {
		if all {
			b.include(t.Route.Path, t.Route.Method)
			continue
		}

		fmt.Fprintf(b.out, "\n[%d/%d] %s %s\n", i+1, len(tools), t.Route.Method, t.Route.Path)
		fmt.Fprintf(b.out, "  tool: %s\n  %s\n", t.Tool.Name, t.Tool.Description)

		c, err := b.ask()
		if err != nil {
			return adjuster.Adjustments{}, err
		}
		switch c {
		case choiceNo:
			continue
		case choiceQuit:
			return b.adjustments(), nil
		case choiceAll:
			all = true
			b.include(t.Route.Path, t.Route.Method)
			continue
		}

		b.include(t.Route.Path, t.Route.Method)
		desc, err := b.readLine("New description (enter keeps current): ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.adjustments(), nil
			}
			return adjuster.Adjustments{}, err
		}
		if desc != "" {
			b.describe(t.Route.Path, t.Route.Method, desc)
		}
	}
	return b.adjustments(), nil
}

func (b *builder) ask() (choice, error) {
	for {
		answer, err := b.readLine("Include? [y]es/[n]o/[a]ll/[q]uit: ")
		if errors.Is(err, io.EOF) {
			return choiceQuit, nil
		}
		if err != nil {
			return 0, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes", "":
			return choiceYes, nil
		case "n", "no":
			return choiceNo, nil
		case "a", "all":
			return choiceAll, nil
		case "q", "quit":
			return choiceQuit, nil
		}
		fmt.Fprintf(b.out, "  please answer y, n, a or q\n")
	}
}

func (b *builder) readLine(prompt string) (string, error) {
	b.in.SetPrompt(prompt)
	line, err := b.in.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errAborted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (b *builder) include(path, method string) {
	for i := range b.routes {
		if b.routes[i].Path == path {
			b.routes[i].Methods = append(b.routes[i].Methods, method)
			return
		}
	}
	b.routes = append(b.routes, adjuster.RouteSelection{Path: path, Methods: []string{method}})
}

func (b *builder) describe(path, method, desc string) {
	update := adjuster.RouteFieldUpdate{Method: method, NewDescription: desc}
	for i := range b.descriptions {
		if b.descriptions[i].Path == path {
			b.descriptions[i].Updates = append(b.descriptions[i].Updates, update)
			return
		}
	}
	b.descriptions = append(b.descriptions, adjuster.RouteDescription{Path: path, Updates: []adjuster.RouteFieldUpdate{update}})
}

func (b *builder) adjustments() adjuster.Adjustments {
	return adjuster.Adjustments{Routes: b.routes, Descriptions: b.descriptions}
}
