// Package cli implements section 6.4's command surface as a thin layer
// over service.Core — command structs that parse positional arguments,
// call the Core (exec list-trxs also asks for each transaction's
// status; every other command makes one call), print a result, and return an exit
// code derived from the error's catalogerr.Kind. It exists to prove
// the Core satisfies every command's information need; the teacher's
// cli package additionally wires Cobra/Viper flag parsing and config
// file discovery, which is outside this layer's scope (the excluded
// CLI framework — DESIGN.md).
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/service"
)

// Exit codes mirror section 7's error kinds: 0 on success, otherwise a
// small stable non-zero code a calling shell script can branch on.
const (
	ExitOK = iota
	ExitInvalid
	ExitNotFound
	ExitConflict
	ExitPreconditionFailed
	ExitAuthFailed
	ExitTransient
	ExitFatal
)

func exitCodeFor(err error) int {
	switch catalogerr.KindOf(err) {
	case catalogerr.KindInvalid:
		return ExitInvalid
	case catalogerr.KindNotFound:
		return ExitNotFound
	case catalogerr.KindConflict:
		return ExitConflict
	case catalogerr.KindPreconditionFailed:
		return ExitPreconditionFailed
	case catalogerr.KindAuthFailed:
		return ExitAuthFailed
	case catalogerr.KindTransient:
		return ExitTransient
	default:
		return ExitFatal
	}
}

// Commands wraps a service.Core with the section 6.4 command surface.
type Commands struct {
	core *service.Core
	out  io.Writer
}

// New returns Commands writing human-readable output to out.
func New(core *service.Core, out io.Writer) *Commands {
	if out == nil {
		out = os.Stdout
	}
	return &Commands{core: core, out: out}
}

// Run dispatches argv (as would follow the binary name) to the
// matching "<noun> <verb>" command and returns a process exit code.
func (c *Commands) Run(ctx context.Context, argv []string) int {
	if len(argv) < 2 {
		fmt.Fprintln(c.out, "usage: <noun> <verb> [args...]")
		return ExitInvalid
	}
	noun, verb, rest := argv[0], argv[1], argv[2:]

	var err error
	switch {
	case noun == "fn" && verb == "register":
		err = c.fnRegister(ctx, rest)
	case noun == "fn" && verb == "update":
		err = c.fnUpdate(ctx, rest)
	case noun == "fn" && verb == "delete":
		err = c.fnDelete(ctx, rest)
	case noun == "fn" && verb == "trigger":
		err = c.fnTrigger(ctx, rest)
	case noun == "table" && verb == "delete":
		err = c.tableDelete(ctx, rest)
	case noun == "table" && verb == "schema":
		err = c.tableSchema(ctx, rest)
	case noun == "collection" && verb == "create":
		err = c.collectionCreate(ctx, rest)
	case noun == "collection" && verb == "delete":
		err = c.collectionDelete(ctx, rest)
	case noun == "exec" && verb == "list-trxs":
		err = c.execListTrxs(ctx, rest)
	default:
		fmt.Fprintf(c.out, "unknown command %q %q\n", noun, verb)
		return ExitInvalid
	}

	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitOK
}

// fn register <collection_id> <manifest_path>
func (c *Commands) fnRegister(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return catalogerr.Invalid("usage: fn register <collection_id> <manifest_path>")
	}
	doc, err := os.ReadFile(args[1])
	if err != nil {
		return catalogerr.Invalid("read manifest: %v", err)
	}
	functionID, functionVersionID, err := c.core.RegisterFunction(ctx, args[0], doc, actorFromEnv())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered function %s (version %s)\n", functionID, functionVersionID)
	return nil
}

// fn update <collection_id> <function_name> <manifest_path>
func (c *Commands) fnUpdate(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return catalogerr.Invalid("usage: fn update <collection_id> <function_name> <manifest_path>")
	}
	doc, err := os.ReadFile(args[2])
	if err != nil {
		return catalogerr.Invalid("read manifest: %v", err)
	}
	functionVersionID, err := c.core.UpdateFunction(ctx, args[0], args[1], doc, actorFromEnv())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "updated function to version %s\n", functionVersionID)
	return nil
}

// fn delete <collection_id> <function_name>
func (c *Commands) fnDelete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return catalogerr.Invalid("usage: fn delete <collection_id> <function_name>")
	}
	if err := c.core.DeleteFunction(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "deleted")
	return nil
}

// fn trigger <collection_id> <function_name> [execution_name]
func (c *Commands) fnTrigger(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return catalogerr.Invalid("usage: fn trigger <collection_id> <function_name> [execution_name]")
	}
	name := ""
	if len(args) == 3 {
		name = args[2]
	}
	execID, err := c.core.Trigger(ctx, args[0], args[1], actorFromEnv(), name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "execution_id=%s\n", execID)
	return nil
}

// table delete <collection_id> <table_name>
func (c *Commands) tableDelete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return catalogerr.Invalid("usage: table delete <collection_id> <table_name>")
	}
	if err := c.core.DeleteTable(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "deleted")
	return nil
}

// table schema <table_id> — prints the table's current version id,
// status and producing function version id, the closest the Core
// comes to a schema (the Core itself does not carry column type
// information; that lives in the bundle's runtime values). Data
// versions and partitions are not printed.
func (c *Commands) tableSchema(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return catalogerr.Invalid("usage: table schema <table_id>")
	}
	tv, err := c.core.TableVersionFor(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "table_version_id=%s status=%s function_version_id=%s\n", tv.ID, tv.Status, tv.FunctionVersionID)
	return nil
}

// collection create <name>
func (c *Commands) collectionCreate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return catalogerr.Invalid("usage: collection create <name>")
	}
	id, err := c.core.CreateCollection(ctx, args[0], actorFromEnv())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "collection_id=%s\n", id)
	return nil
}

// collection delete <collection_id>
func (c *Commands) collectionDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return catalogerr.Invalid("usage: collection delete <collection_id>")
	}
	if err := c.core.DeleteCollection(ctx, args[0], nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "deleted")
	return nil
}

// exec list-trxs <execution_id>
func (c *Commands) execListTrxs(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return catalogerr.Invalid("usage: exec list-trxs <execution_id>")
	}
	page, err := c.core.ListTransactions(ctx, catalog.Cursor{Len: 200, OrderBy: "id"}, []catalog.Filter{
		{Column: "execution_id", Op: catalog.OpEq, Value: args[0]},
	})
	if err != nil {
		return err
	}
	for _, tr := range page.Items {
		status, err := c.core.TransactionStatus(ctx, tr.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", tr.ID, tr.TransactionKey, status)
	}
	return nil
}

func actorFromEnv() string {
	if a := os.Getenv("TD_EXECORE_ACTOR"); a != "" {
		return a
	}
	return "cli"
}
