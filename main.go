package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"github.com/illarion/cloak/cmd"
	"github.com/illarion/cloak/internal/antiforensics"
	"github.com/illarion/cloak/internal/vault"
)

func main() {
	defer memguard.Purge()

	if err := antiforensics.DisableCoreDumps(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to disable core dumps: %s\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		cmd.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "ls":
		runLs(ctx, os.Args[2:])
	case "tree":
		runTree(ctx, os.Args[2:])
	case "add":
		runAdd(ctx, os.Args[2:])
	case "get":
		runGet(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "mkdir":
		runMkdir(ctx, os.Args[2:])
	case "mv":
		runMv(ctx, os.Args[2:])
	case "cp":
		runCp(ctx, os.Args[2:])
	case "find":
		runFind(ctx, os.Args[2:])
	case "info":
		runInfo(ctx, os.Args[2:])
	case "clip":
		runClip(ctx, os.Args[2:])
	case "import":
		runImport(ctx, os.Args[2:])
	case "export":
		runExport(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "wipe":
		runWipe(ctx, os.Args[2:])
	case "hide":
		runHide(ctx, os.Args[2:])
	case "reveal":
		runReveal(ctx, os.Args[2:])
	case "capacity":
		runCapacity(ctx, os.Args[2:])
	case "shred":
		runShred(ctx, os.Args[2:])
	case "decoys":
		runDecoys(ctx, os.Args[2:])
	case "retime":
		runRetime(ctx, os.Args[2:])
	case "wipe-free":
		runWipeFree(ctx, os.Args[2:])
	case "probe":
		runProbe(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		cmd.Exit(1)
	}
}

// newFlagSet creates a flag set with the -f/-file container flag
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	file := new(string)
	fs.StringVar(file, "f", "", "Container file (default: vault.file from config)")
	fs.StringVar(file, "file", "", "Container file (default: vault.file from config)")
	return fs, file
}

// parse parses flags anywhere in args and returns the positional arguments
func parse(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			cmd.Exit(1)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// need exits with a usage line unless args has between lo and hi entries.
// A negative hi means no upper bound.
func need(args []string, lo, hi int, usage string) {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		fmt.Fprintf(os.Stderr, "Usage: cloak %s\n", usage)
		cmd.Exit(1)
	}
}

func arg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func runInit(_ context.Context, args []string) {
	fs, file := newFlagSet("init")
	decoy := fs.Bool("decoy", false, "Also create a decoy payload with its own password")
	need(parse(fs, args), 0, 0, "init [-f file] [--decoy]")

	cmd.Init(*file, *decoy)
}

func runStatus(_ context.Context, args []string) {
	fs, file := newFlagSet("status")
	need(parse(fs, args), 0, 0, "status [-f file]")

	cmd.Status(*file)
}

func runLs(_ context.Context, args []string) {
	fs, file := newFlagSet("ls")
	long := fs.Bool("l", false, "Show mode, owner, size and modification time")
	rest := parse(fs, args)
	need(rest, 0, 1, "ls [-f file] [-l] [path]")

	cmd.Ls(*file, arg(rest, 0, "/"), *long)
}

func runTree(_ context.Context, args []string) {
	fs, file := newFlagSet("tree")
	rest := parse(fs, args)
	need(rest, 0, 1, "tree [-f file] [path]")

	cmd.Tree(*file, arg(rest, 0, "/"))
}

func runAdd(ctx context.Context, args []string) {
	fs, file := newFlagSet("add")
	conflict := fs.String("conflict", "overwrite", "When the file exists: overwrite, skip or keep-both")
	rest := parse(fs, args)
	need(rest, 1, 2, "add [-f file] [-conflict policy] <host-file> [vpath]")

	cmd.Add(ctx, *file, rest[0], arg(rest, 1, "/"), *conflict)
}

func runGet(ctx context.Context, args []string) {
	fs, file := newFlagSet("get")
	rest := parse(fs, args)
	need(rest, 1, 2, "get [-f file] <vpath> [host-dir]")

	cmd.Get(ctx, *file, rest[0], arg(rest, 1, "."))
}

func runRm(_ context.Context, args []string) {
	fs, file := newFlagSet("rm")
	recursive := fs.Bool("r", false, "Remove directories and their contents")
	rest := parse(fs, args)
	need(rest, 1, 1, "rm [-f file] [-r] <vpath>")

	cmd.Remove(*file, rest[0], *recursive)
}

func runMkdir(_ context.Context, args []string) {
	fs, file := newFlagSet("mkdir")
	parents := fs.Bool("p", false, "Create missing parent directories")
	rest := parse(fs, args)
	need(rest, 1, 1, "mkdir [-f file] [-p] <vpath>")

	cmd.Mkdir(*file, rest[0], *parents)
}

func runMv(_ context.Context, args []string) {
	fs, file := newFlagSet("mv")
	rest := parse(fs, args)
	need(rest, 2, 2, "mv [-f file] <src> <dst>")

	cmd.Move(*file, rest[0], rest[1])
}

func runCp(_ context.Context, args []string) {
	fs, file := newFlagSet("cp")
	rest := parse(fs, args)
	need(rest, 2, 2, "cp [-f file] <src> <dst>")

	cmd.Copy(*file, rest[0], rest[1])
}

func runFind(_ context.Context, args []string) {
	fs, file := newFlagSet("find")
	rest := parse(fs, args)
	need(rest, 1, 2, "find [-f file] <pattern> [path]")

	cmd.Find(*file, rest[0], arg(rest, 1, "/"))
}

func runInfo(_ context.Context, args []string) {
	fs, file := newFlagSet("info")
	rest := parse(fs, args)
	need(rest, 1, 1, "info [-f file] <vpath>")

	cmd.Info(*file, rest[0])
}

func runClip(ctx context.Context, args []string) {
	fs, file := newFlagSet("clip")
	timeout := fs.Duration("t", 30*time.Second, "Clear the clipboard after this long")
	rest := parse(fs, args)
	need(rest, 1, 1, "clip [-f file] [-t timeout] <vpath>")

	cmd.Clip(ctx, *file, rest[0], *timeout)
}

func runImport(ctx context.Context, args []string) {
	fs, file := newFlagSet("import")
	conflict := fs.String("conflict", "overwrite", "When a file exists: overwrite, skip or keep-both")
	rest := parse(fs, args)
	need(rest, 1, 2, "import [-f file] [-conflict policy] <host-dir> [vpath]")

	cmd.Import(ctx, *file, rest[0], arg(rest, 1, ""), *conflict)
}

func runExport(ctx context.Context, args []string) {
	fs, file := newFlagSet("export")
	rest := parse(fs, args)
	need(rest, 2, 2, "export [-f file] <vpath> <host-dir>")

	cmd.Export(ctx, *file, rest[0], rest[1])
}

func runDiff(_ context.Context, args []string) {
	fs, file := newFlagSet("diff")
	rest := parse(fs, args)
	need(rest, 2, 2, "diff [-f file] <vpath> <host-file>")

	cmd.Diff(*file, rest[0], rest[1])
}

func runPasswd(_ context.Context, args []string) {
	fs, file := newFlagSet("passwd")
	need(parse(fs, args), 0, 0, "passwd [-f file]")

	cmd.Passwd(*file)
}

func runWipe(_ context.Context, args []string) {
	fs, file := newFlagSet("wipe")
	confirm := fs.String("confirm", "", "Confirmation token")
	need(parse(fs, args), 0, 0, "wipe [-f file] --confirm "+vault.WipeConfirmation)

	cmd.Wipe(*file, *confirm)
}

func runHide(_ context.Context, args []string) {
	fs, file := newFlagSet("hide")
	bits := fs.Int("bits", 0, "Bits per sample, 1-4 (default: stego.bits_per_unit)")
	trailer := fs.Bool("trailer", false, "Append after the image data instead of using pixel bits")
	rest := parse(fs, args)
	need(rest, 2, 3, "hide [-f file] [-bits n] [-trailer] <carrier> <out> [payload]")

	cmd.Hide(*file, rest[0], rest[1], arg(rest, 2, ""), *bits, *trailer)
}

func runReveal(_ context.Context, args []string) {
	fs, file := newFlagSet("reveal")
	bits := fs.Int("bits", 0, "Bits per sample to try first")
	rest := parse(fs, args)
	need(rest, 2, 2, "reveal [-bits n] <carrier> <out>")

	cmd.Reveal(*file, rest[0], rest[1], *bits)
}

func runCapacity(_ context.Context, args []string) {
	fs, file := newFlagSet("capacity")
	bits := fs.Int("bits", 0, "Bits per sample, 1-4")
	trailer := fs.Bool("trailer", false, "Report trailer capacity")
	rest := parse(fs, args)
	need(rest, 1, 1, "capacity [-bits n] [-trailer] <carrier>")

	cmd.Capacity(*file, rest[0], *bits, *trailer)
}

func runShred(_ context.Context, args []string) {
	fs := flag.NewFlagSet("shred", flag.ExitOnError)
	passes := fs.Int("n", antiforensics.DefaultPasses, "Overwrite passes")
	recursive := fs.Bool("r", false, "Shred directories and their contents")
	rest := parse(fs, args)
	need(rest, 1, -1, "shred [-n passes] [-r] <file> [file...]")

	cmd.Shred(rest, *passes, *recursive)
}

func runDecoys(_ context.Context, args []string) {
	fs := flag.NewFlagSet("decoys", flag.ExitOnError)
	count := fs.Int("n", 10, "Number of files")
	minSize := fs.Int("min", 1<<10, "Minimum file size in bytes")
	maxSize := fs.Int("max", 64<<10, "Maximum file size in bytes")
	rest := parse(fs, args)
	need(rest, 1, 1, "decoys [-n count] [-min bytes] [-max bytes] <dir>")

	cmd.Decoys(rest[0], *count, *minSize, *maxSize)
}

func runRetime(_ context.Context, args []string) {
	fs := flag.NewFlagSet("retime", flag.ExitOnError)
	ref := fs.String("ref", "", "Blend with the timestamps of this directory")
	window := fs.Duration("window", antiforensics.DefaultTimestampWindow, "Random timestamp window")
	gap := fs.Duration("gap", 0, "Also shift all files back by at least this much")
	rest := parse(fs, args)
	need(rest, 1, -1, "retime [-ref dir] [-window d] [-gap d] <file> [file...]")

	cmd.Retime(rest, *ref, *window, *gap)
}

func runWipeFree(ctx context.Context, args []string) {
	fs, file := newFlagSet("wipe-free")
	limit := fs.Int64("max", 0, "Stop after this many bytes (0 fills the disk)")
	rest := parse(fs, args)
	need(rest, 0, 1, "wipe-free [-max bytes] [dir]")

	cmd.WipeFree(ctx, *file, arg(rest, 0, "."), *limit)
}

func runProbe(_ context.Context, args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	need(parse(fs, args), 0, 0, "probe")

	cmd.Probe()
}

func runKeyring(_ context.Context, args []string) {
	fs, file := newFlagSet("keyring")
	rest := parse(fs, args)
	need(rest, 1, 1, "keyring [-f file] <save|delete|status>")

	switch rest[0] {
	case "save":
		cmd.KeyringSave(*file)
	case "delete":
		cmd.KeyringDelete(*file)
	case "status":
		cmd.KeyringStatus(*file)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", rest[0])
		cmd.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cloak completion <bash|zsh|fish>")
		cmd.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("cloak - Deniable encrypted containers")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cloak <command> [-f file] [arguments]")
	fmt.Println()
	fmt.Println("Container:")
	fmt.Println("  init        Create a new container, optionally with a decoy")
	fmt.Println("  status      Show container facts and lockout state")
	fmt.Println("  passwd      Change the container password")
	fmt.Println("  wipe        Destroy the container")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println()
	fmt.Println("Files:")
	fmt.Println("  ls, tree    List the container file system")
	fmt.Println("  add, get    Copy single files in and out")
	fmt.Println("  import      Import a host directory tree")
	fmt.Println("  export      Export a directory tree to the host")
	fmt.Println("  rm, mkdir   Remove entries, create directories")
	fmt.Println("  mv, cp      Move and copy entries")
	fmt.Println("  find, info  Search by name, show metadata")
	fmt.Println("  clip        Copy a text file to the clipboard")
	fmt.Println("  diff        Compare a container file with a host file")
	fmt.Println()
	fmt.Println("Steganography:")
	fmt.Println("  hide        Hide data inside a PNG, BMP, WAV, JPEG or GIF")
	fmt.Println("  reveal      Extract hidden data from a carrier")
	fmt.Println("  capacity    Show how much a carrier can hold")
	fmt.Println()
	fmt.Println("Anti-forensics:")
	fmt.Println("  shred       Securely delete host files")
	fmt.Println("  decoys      Generate decoy files")
	fmt.Println("  retime      Rewrite host file timestamps")
	fmt.Println("  wipe-free   Wipe free disk space")
	fmt.Println("  probe       Check for debuggers, VMs and forensic tools")
	fmt.Println()
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  cloak init --decoy              # Create container with a decoy")
	fmt.Println("  cloak add notes.txt /docs/      # Store a file")
	fmt.Println("  cloak hide photo.png out.png    # Hide the container in an image")
	fmt.Println("  cloak status                    # Check container state")
	fmt.Println()
	fmt.Println("Use 'cloak help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("cloak init [-f file] [--decoy]")
		fmt.Println()
		fmt.Println("Creates a new container (default ./.cloak, or vault.file from config).")
		fmt.Println("Prompts for a password, or reads CLOAK_PASSWORD.")
		fmt.Println("With --decoy a second password (CLOAK_DECOY_PASSWORD) opens an")
		fmt.Println("innocuous file tree instead of the real one.")
		fmt.Println("The password is not stored anywhere - you must remember it.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  cloak init")
		fmt.Println("  cloak init -f ~/backup.bin --decoy")
	case "status":
		fmt.Println("cloak status [-f file]")
		fmt.Println()
		fmt.Println("Shows container size, format version, header style,")
		fmt.Println("failed attempts and lockout, and git exposure.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "ls", "tree":
		fmt.Println("cloak ls [-f file] [-l] [path]")
		fmt.Println("cloak tree [-f file] [path]")
		fmt.Println()
		fmt.Println("Lists a directory, or the whole tree below path.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -l    Show mode, owner, size and modification time")
	case "add", "import":
		fmt.Println("cloak add [-conflict policy] <host-file> [vpath]")
		fmt.Println("cloak import [-conflict policy] <host-dir> [vpath]")
		fmt.Println()
		fmt.Println("Copies host files into the container. A file added to an existing")
		fmt.Println("directory lands inside it under its own name. An imported")
		fmt.Println("directory's contents land in vpath (default /<dir name>).")
		fmt.Println("Modification times and permission bits are kept.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -conflict overwrite   Replace existing files (default)")
		fmt.Println("  -conflict skip        Keep existing files")
		fmt.Println("  -conflict keep-both   Store next to them under a new name")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  cloak add .env /secrets/")
		fmt.Println("  cloak import ~/project /project -conflict skip")
	case "get", "export":
		fmt.Println("cloak get <vpath> [host-dir]")
		fmt.Println("cloak export <vpath> <host-dir>")
		fmt.Println()
		fmt.Println("Writes a container file or directory tree to the host.")
		fmt.Println("A directory's contents land directly in host-dir.")
	case "rm":
		fmt.Println("cloak rm [-r] <vpath>")
		fmt.Println()
		fmt.Println("Removes a file, or a directory tree with -r.")
	case "mkdir":
		fmt.Println("cloak mkdir [-p] <vpath>")
		fmt.Println()
		fmt.Println("Creates a directory. -p creates missing parents.")
	case "mv", "cp":
		fmt.Println("cloak mv <src> <dst>")
		fmt.Println("cloak cp <src> <dst>")
		fmt.Println()
		fmt.Println("Moves or copies an entry. When dst is an existing directory the")
		fmt.Println("entry lands inside it.")
	case "find":
		fmt.Println("cloak find <pattern> [path]")
		fmt.Println()
		fmt.Println("Lists entries whose name matches a glob pattern.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  cloak find '*.txt' /docs")
	case "info":
		fmt.Println("cloak info <vpath>")
		fmt.Println()
		fmt.Println("Shows size, mode, owner and timestamps of an entry.")
	case "clip":
		fmt.Println("cloak clip [-t timeout] <vpath>")
		fmt.Println()
		fmt.Println("Copies a text file to the clipboard and clears it after the")
		fmt.Println("timeout (default 30s) or on Ctrl-C. The command waits until then.")
	case "diff":
		fmt.Println("cloak diff <vpath> <host-file>")
		fmt.Println()
		fmt.Println("Shows a unified diff from the container file to the host file.")
	case "passwd":
		fmt.Println("cloak passwd [-f file]")
		fmt.Println()
		fmt.Println("Changes the main password and re-encrypts all files.")
		fmt.Println("The new password can come from CLOAK_NEW_PASSWORD.")
		fmt.Println("A password stored in the keyring is updated as well.")
	case "wipe":
		fmt.Println("cloak wipe [-f file] --confirm " + vault.WipeConfirmation)
		fmt.Println()
		fmt.Println("Overwrites and deletes the container. This cannot be undone.")
		fmt.Println("Does not require a password.")
	case "hide", "reveal", "capacity":
		fmt.Println("cloak hide [-bits n] [-trailer] <carrier> <out> [payload]")
		fmt.Println("cloak reveal [-bits n] <carrier> <out>")
		fmt.Println("cloak capacity [-bits n] [-trailer] <carrier>")
		fmt.Println()
		fmt.Println("Hides a payload (the container itself by default) in the low bits")
		fmt.Println("of PNG, BMP or WAV samples. JPEG and GIF carriers, or -trailer,")
		fmt.Println("append the payload after the image data instead.")
		fmt.Println("reveal detects the bit depth on its own.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  cloak capacity -bits 2 photo.png")
		fmt.Println("  cloak hide -bits 2 photo.png holiday.png")
		fmt.Println("  cloak reveal holiday.png restored.cloak")
	case "shred":
		fmt.Println("cloak shred [-n passes] [-r] <file> [file...]")
		fmt.Println()
		fmt.Println("Overwrites files with zeros, ones and random data, renames")
		fmt.Println("them and deletes them. Journaling and copy-on-write file")
		fmt.Println("systems or SSDs may keep older copies.")
	case "decoys":
		fmt.Println("cloak decoys [-n count] [-min bytes] [-max bytes] <dir>")
		fmt.Println()
		fmt.Println("Writes plausible-looking files of random content.")
	case "retime":
		fmt.Println("cloak retime [-ref dir] [-window d] [-gap d] <file> [file...]")
		fmt.Println()
		fmt.Println("Sets random timestamps, or blends with the files in -ref.")
		fmt.Println("-gap then shifts all files back together.")
	case "wipe-free":
		fmt.Println("cloak wipe-free [-max bytes] [dir]")
		fmt.Println()
		fmt.Println("Fills free space with random data, then deletes it.")
		fmt.Println("Honors forensics.wipe_rate_limit. Ctrl-C stops early.")
	case "probe":
		fmt.Println("cloak probe")
		fmt.Println()
		fmt.Println("Looks for debuggers, virtual machines and forensic tools.")
		fmt.Println("A clean result is not a guarantee.")
	case "keyring":
		fmt.Println("cloak keyring [-f file] <save|delete|status>")
		fmt.Println()
		fmt.Println("Stores the password in the OS keyring so commands do not prompt.")
	case "completion":
		fmt.Println("cloak completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(cloak completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(cloak completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  cloak completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
