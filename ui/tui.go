package ui

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/jroimartin/gocui"
	"github.com/pkg/errors"

	"github.com/elfwalk/elfwalk/models"
)

// Tui is a two-pane browser over a finished dependency graph: every node on
// the left, details for the selection on the right. It only reads the
// graph; selection is an index into the stable node order, so redraws never
// invalidate it.
type Tui struct {
	g        *gocui.Gui
	graph    *models.DependencyGraph
	nodes    []*models.ResolutionEntry
	selected int
}

func Run(graph *models.DependencyGraph) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return errors.Wrap(err, "gocui failed")
	}
	defer g.Close()

	t := &Tui{g: g, graph: graph, nodes: graph.Nodes()}
	g.SetManagerFunc(t.layout)
	if err := t.bindKeys(); err != nil {
		return err
	}
	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (t *Tui) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	split := maxX / 3
	if v, err := g.SetView("nodes", 0, 0, split, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Binaries"
		v.Highlight = true
		v.SelBgColor = gocui.ColorGreen
		v.SelFgColor = gocui.ColorBlack
		g.SetCurrentView("nodes")
	}
	if v, err := g.SetView("detail", split+1, 0, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Details"
		v.Wrap = true
	}
	t.drawNodes(g)
	t.drawDetail(g)
	return nil
}

func label(e *models.ResolutionEntry) string {
	if e.Kind == models.EntryResolved {
		return filepath.Base(e.Path)
	}
	return fmt.Sprintf("%s [%s]", e.Name, e.Kind)
}

func (t *Tui) drawNodes(g *gocui.Gui) {
	v, err := g.View("nodes")
	if err != nil {
		return
	}
	v.Clear()
	for _, node := range t.nodes {
		fmt.Fprintln(v, label(node))
	}
	// keep the selection visible when the list outgrows the pane
	_, vh := v.Size()
	oy := 0
	if vh > 0 && t.selected >= vh {
		oy = t.selected - vh + 1
	}
	v.SetOrigin(0, oy)
	v.SetCursor(0, t.selected-oy)
}

func (t *Tui) drawDetail(g *gocui.Gui) {
	v, err := g.View("detail")
	if err != nil || len(t.nodes) == 0 {
		return
	}
	v.Clear()
	node := t.nodes[t.selected]
	switch node.Kind {
	case models.EntryResolved:
		d := node.Desc
		fmt.Fprintf(v, "Path:      %s\n", node.Path)
		fmt.Fprintf(v, "Arch:      %s (%d-bit, %s endian)\n", d.Arch, d.Bits, endianName(d))
		fmt.Fprintf(v, "OS/ABI:    %v\n", d.OSABI)
		fmt.Fprintf(v, "Type:      %v\n", d.Type)
		if d.Interp != "" {
			fmt.Fprintf(v, "Interp:    %s\n", d.Interp)
		}
		if d.Soname != "" {
			fmt.Fprintf(v, "Soname:    %s\n", d.Soname)
		}
		if len(d.Rpath) > 0 {
			fmt.Fprintf(v, "Rpath:     %v\n", d.Rpath)
		}
		if len(d.Runpath) > 0 {
			fmt.Fprintf(v, "Runpath:   %v\n", d.Runpath)
		}
		if t.graph.InCycle(node.Path) {
			fmt.Fprintf(v, "Cycle:     participates in a dependency cycle\n")
		}
		if d.Static() {
			fmt.Fprintf(v, "\nStatic binary, no dynamic dependencies.\n")
			return
		}
		fmt.Fprintf(v, "\nNeeds:\n")
		for _, e := range t.graph.Edges(node.Path) {
			switch e.To.Kind {
			case models.EntryResolved:
				fmt.Fprintf(v, "  %s => %s\n", e.Name, e.To.Path)
			case models.EntryUnresolved:
				fmt.Fprintf(v, "  %s => not found\n", e.Name)
			case models.EntryArchMismatch:
				fmt.Fprintf(v, "  %s => %s is %s, need %s\n",
					e.Name, e.To.Path, e.To.Found, e.To.Expected)
			case models.EntryCorrupt:
				fmt.Fprintf(v, "  %s => %v\n", e.Name, e.To.Err)
			}
		}
	case models.EntryUnresolved:
		fmt.Fprintf(v, "Name:      %s\n", node.Name)
		fmt.Fprintf(v, "Status:    not found in any search directory\n")
		fmt.Fprintf(v, "Needed by: %s\n", node.Requester)
	case models.EntryArchMismatch:
		fmt.Fprintf(v, "Name:      %s\n", node.Name)
		fmt.Fprintf(v, "Status:    wrong architecture\n")
		fmt.Fprintf(v, "Found:     %s (%s)\n", node.Path, node.Found)
		fmt.Fprintf(v, "Expected:  %s\n", node.Expected)
		fmt.Fprintf(v, "Needed by: %s\n", node.Requester)
	case models.EntryCorrupt:
		fmt.Fprintf(v, "Name:      %s\n", node.Name)
		fmt.Fprintf(v, "Status:    failed to parse\n")
		fmt.Fprintf(v, "Found:     %s\n", node.Path)
		fmt.Fprintf(v, "Error:     %v\n", node.Err)
		fmt.Fprintf(v, "Needed by: %s\n", node.Requester)
	}
}

func endianName(d *models.ElfDescriptor) string {
	if d.ByteOrder == binary.BigEndian {
		return "big"
	}
	return "little"
}

func (t *Tui) bindKeys() error {
	g := t.g
	if err := g.SetKeybinding("", 'q', gocui.ModNone, t.quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, t.quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", gocui.KeyTab, gocui.ModNone, t.switchPane); err != nil {
		return err
	}
	for _, key := range []interface{}{gocui.KeyArrowDown, 'j'} {
		if err := g.SetKeybinding("nodes", key, gocui.ModNone, t.moveDown); err != nil {
			return err
		}
	}
	for _, key := range []interface{}{gocui.KeyArrowUp, 'k'} {
		if err := g.SetKeybinding("nodes", key, gocui.ModNone, t.moveUp); err != nil {
			return err
		}
	}
	for _, key := range []interface{}{gocui.KeyArrowDown, 'j'} {
		if err := g.SetKeybinding("detail", key, gocui.ModNone, scrollBy(1)); err != nil {
			return err
		}
	}
	for _, key := range []interface{}{gocui.KeyArrowUp, 'k'} {
		if err := g.SetKeybinding("detail", key, gocui.ModNone, scrollBy(-1)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tui) quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (t *Tui) switchPane(g *gocui.Gui, v *gocui.View) error {
	if v != nil && v.Name() == "nodes" {
		_, err := g.SetCurrentView("detail")
		return err
	}
	_, err := g.SetCurrentView("nodes")
	return err
}

func (t *Tui) moveDown(g *gocui.Gui, v *gocui.View) error {
	if t.selected < len(t.nodes)-1 {
		t.selected++
		t.resetDetail(g)
	}
	return nil
}

func (t *Tui) moveUp(g *gocui.Gui, v *gocui.View) error {
	if t.selected > 0 {
		t.selected--
		t.resetDetail(g)
	}
	return nil
}

func (t *Tui) resetDetail(g *gocui.Gui) {
	if v, err := g.View("detail"); err == nil {
		v.SetOrigin(0, 0)
	}
}

func scrollBy(dy int) func(*gocui.Gui, *gocui.View) error {
	return func(g *gocui.Gui, v *gocui.View) error {
		ox, oy := v.Origin()
		if oy+dy >= 0 {
			v.SetOrigin(ox, oy+dy)
		}
		return nil
	}
}
