// Package main provides chidbtool, a read-only inspector for chidb
// database files. It opens a file through the pager and B-tree layers
// and prints page headers, cell counts, and individual cells. It does
// not modify an existing database, but a missing or empty file is
// created and initialized as a new database by chidb.Open. It does
// not parse SQL or execute DBM programs: that's out of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/msAlcantara/chidb"
)

var CLI struct {
	Verbose bool `name:"verbose" short:"v" help:"Enable debug logging"`

	Header HeaderCmd `cmd:"" help:"Print the file header"`
	Pages  PagesCmd  `cmd:"" help:"List every page and its node type"`
	Dump   DumpCmd   `cmd:"" help:"Dump every cell of one page"`
}

// HeaderCmd prints the 100-byte file header of a database file.
type HeaderCmd struct {
	File string `arg:"" required:"" help:"Path to the database file" type:"path"`
}

func (c *HeaderCmd) Run(log *logrus.Logger) error {
	bt, err := chidb.Open(c.File, chidb.WithLogger(log))
	if err != nil {
		return err
	}
	defer bt.Close()

	h, err := bt.ReadHeader()
	if err != nil {
		return err
	}
	fmt.Printf("page size:        %d\n", h.PageSize)
	fmt.Printf("file change ctr:  %d\n", h.FileChangeCounter)
	fmt.Printf("total pages:      %d\n", bt.TotalPages())
	fmt.Printf("schema version:   %d\n", h.SchemaVersion)
	fmt.Printf("page cache size:  %d\n", h.PageCacheSize)
	return nil
}

// PagesCmd lists every page between 1 and the file's page count (its
// size divided by the page size), together with the node type stored
// there.
type PagesCmd struct {
	File string `arg:"" required:"" help:"Path to the database file" type:"path"`
}

func (c *PagesCmd) Run(log *logrus.Logger) error {
	bt, err := chidb.Open(c.File, chidb.WithLogger(log))
	if err != nil {
		return err
	}
	defer bt.Close()

	npages := bt.TotalPages()
	for i := uint32(1); i <= npages; i++ {
		node, err := bt.GetNodeByPage(i)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		fmt.Printf("page %-6d type=%-14s ncells=%d\n", i, node.Type(), node.NCells())
		if err := bt.FreeMemNode(node); err != nil {
			return err
		}
	}
	return nil
}

// DumpCmd prints every cell of a single page.
type DumpCmd struct {
	File string `arg:"" required:"" help:"Path to the database file" type:"path"`
	Page uint32 `arg:"" required:"" help:"Page number to dump"`
}

func (c *DumpCmd) Run(log *logrus.Logger) error {
	bt, err := chidb.Open(c.File, chidb.WithLogger(log))
	if err != nil {
		return err
	}
	defer bt.Close()

	node, err := bt.GetNodeByPage(c.Page)
	if err != nil {
		return err
	}
	defer bt.FreeMemNode(node)

	fmt.Printf("page %d: type=%s ncells=%d right_page=%d\n", c.Page, node.Type(), node.NCells(), node.RightPage())
	for i := uint16(0); i < node.NCells(); i++ {
		cell, err := node.GetCell(i)
		if err != nil {
			return err
		}
		switch {
		case node.Type() == chidb.InternalTable:
			fmt.Printf("  [%d] child=%d key=%d\n", i, cell.ChildPage(), cell.Key())
		case node.Type() == chidb.LeafTable:
			fmt.Printf("  [%d] key=%d len(data)=%d\n", i, cell.Key(), len(cell.Data()))
		case node.Type() == chidb.InternalIndex:
			fmt.Printf("  [%d] child=%d keyIdx=%d keyPk=%d\n", i, cell.ChildPage(), cell.Key(), cell.KeyPk())
		case node.Type() == chidb.LeafIndex:
			fmt.Printf("  [%d] keyIdx=%d keyPk=%d\n", i, cell.Key(), cell.KeyPk())
		}
	}
	return nil
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	ctx := kong.Parse(&CLI,
		kong.Name("chidbtool"),
		kong.Description("Inspect chidb database files: headers, pages, cells"),
		kong.UsageOnError(),
	)

	if CLI.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	err := ctx.Run(log)
	ctx.FatalIfErrorf(err)
}
