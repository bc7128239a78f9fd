package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		Exit(1)
	}
}

const bashCompletion = `_cloak() {
    local cur prev words cword
    _init_completion || return

    local commands="init status ls tree add get rm mkdir mv cp find info clip import export diff passwd wipe hide reveal capacity shred decoys retime wipe-free probe keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    if [[ "$prev" == "-f" || "$prev" == "-file" ]]; then
        _filedir
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        ls|tree|rm|mv|cp|info|clip|get|export)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-f -l -r -p -conflict" -- "$cur"))
            else
                # Complete with paths from the container
                local files
                files=$(cloak find '*' / 2>/dev/null)
                COMPREPLY=($(compgen -W "$files" -- "$cur"))
            fi
            ;;
        hide|capacity)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-f -bits -trailer" -- "$cur"))
            else
                _filedir
            fi
            ;;
        reveal)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-f -bits" -- "$cur"))
            else
                _filedir
            fi
            ;;
        shred)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-n -r" -- "$cur"))
            else
                _filedir
            fi
            ;;
        add|import|diff|decoys|retime|wipe-free)
            _filedir
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _cloak cloak
`

const zshCompletion = `#compdef cloak

_cloak() {
    local -a commands
    commands=(
        'init:Create a new container'
        'status:Show container facts and lockout state'
        'ls:List a directory in the container'
        'tree:Show the container directory tree'
        'add:Store a host file in the container'
        'get:Extract a file or directory to the host'
        'rm:Remove a file or directory'
        'mkdir:Create a directory'
        'mv:Move or rename an entry'
        'cp:Copy an entry'
        'find:Find entries by name pattern'
        'info:Show entry metadata'
        'clip:Copy a text file to the clipboard'
        'import:Import a host directory tree'
        'export:Export a directory tree to the host'
        'diff:Compare a container file with a host file'
        'passwd:Change the container password'
        'wipe:Destroy the container'
        'hide:Hide data inside an image or audio file'
        'reveal:Extract hidden data from a carrier'
        'capacity:Show how much a carrier can hold'
        'shred:Securely delete host files'
        'decoys:Generate decoy files'
        'retime:Rewrite host file timestamps'
        'wipe-free:Wipe free disk space'
        'probe:Check for debuggers, VMs and forensic tools'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'cloak commands' commands
            ;;
        args)
            case "${words[2]}" in
                ls|tree|rm|mv|cp|info|clip|get|export)
                    _arguments \
                        '-f[Container file]:file:_files' \
                        '*:container path:_cloak_paths'
                    ;;
                hide|capacity)
                    _arguments \
                        '-f[Container file]:file:_files' \
                        '-bits[Bits per sample]:bits:(1 2 3 4)' \
                        '-trailer[Append after the image data]' \
                        '*:file:_files'
                    ;;
                reveal)
                    _arguments \
                        '-bits[Bits per sample]:bits:(1 2 3 4)' \
                        '*:file:_files'
                    ;;
                shred)
                    _arguments \
                        '-n[Overwrite passes]:passes:' \
                        '-r[Shred directories recursively]' \
                        '*:file:_files'
                    ;;
                add|import|diff|decoys|retime|wipe-free)
                    _arguments '*:file:_files'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'cloak commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_cloak_paths() {
    local -a files
    files=(${(f)"$(cloak find '*' / 2>/dev/null)"})
    _describe -t files 'container paths' files
}

_cloak "$@"
`

const fishCompletion = `# cloak fish completions

set -l commands init status ls tree add get rm mkdir mv cp find info clip import export diff passwd wipe hide reveal capacity shred decoys retime wipe-free probe keyring help completion

complete -c cloak -f

# Commands
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new container'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show container status'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List a directory'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a tree -d 'Show directory tree'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a add -d 'Store a host file'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a get -d 'Extract to the host'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove an entry'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a mkdir -d 'Create a directory'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a mv -d 'Move an entry'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a cp -d 'Copy an entry'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a find -d 'Find entries'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a info -d 'Show entry metadata'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a clip -d 'Copy to clipboard'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a import -d 'Import a host tree'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a export -d 'Export a tree'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare with a host file'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change password'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a wipe -d 'Destroy the container'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a hide -d 'Hide data in a carrier'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a reveal -d 'Extract hidden data'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a capacity -d 'Show carrier capacity'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a shred -d 'Securely delete files'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a decoys -d 'Generate decoy files'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a retime -d 'Rewrite timestamps'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a wipe-free -d 'Wipe free space'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a probe -d 'Probe the environment'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c cloak -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# container paths
complete -c cloak -n "__fish_seen_subcommand_from ls tree rm mv cp info clip get export" -a "(cloak find '*' / 2>/dev/null)"

# host files
complete -c cloak -n "__fish_seen_subcommand_from add import diff hide reveal capacity shred decoys retime wipe-free" -F

# stego flags
complete -c cloak -n "__fish_seen_subcommand_from hide reveal capacity" -o bits -d 'Bits per sample'
complete -c cloak -n "__fish_seen_subcommand_from hide capacity" -o trailer -d 'Append after the image data'

# shred flags
complete -c cloak -n "__fish_seen_subcommand_from shred" -s n -d 'Overwrite passes'
complete -c cloak -n "__fish_seen_subcommand_from shred" -s r -d 'Shred directories'

# keyring subcommands
complete -c cloak -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c cloak -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c cloak -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
