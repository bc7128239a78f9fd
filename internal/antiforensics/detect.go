package antiforensics

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Finding is the result of a heuristic probe. A negative finding is not a
// guarantee; these checks only inform what the user is shown.
type Finding struct {
	Name       string
	Detected   bool
	Indicators []string
}

func (f *Finding) add(indicator string) {
	f.Detected = true
	f.Indicators = append(f.Indicators, indicator)
}

var (
	debuggerNames = []string{"gdb", "lldb", "dlv", "strace", "ltrace", "valgrind", "radare2", "r2", "x64dbg", "ida"}

	hypervisorMarkers = []string{"vmware", "virtualbox", "vbox", "qemu", "kvm", "xen", "hyper-v", "microsoft corporation", "parallels", "bochs", "bhyve"}

	forensicTools = []string{
		"volatility", "vol.py", "vol", "autopsy", "fls", "icat", "foremost", "scalpel",
		"bulk_extractor", "photorec", "testdisk", "wireshark", "tshark", "tcpdump",
		"sysdig", "bpftrace", "avml", "lime", "guymager", "ewfacquire", "dc3dd",
	}
)

// probe reads system state from configurable roots so it can run against
// a fake tree in tests.
type probe struct {
	procRoot string
	sysRoot  string
	lookPath func(string) (string, error)
	release  func() string
}

var system = probe{
	procRoot: "/proc",
	sysRoot:  "/sys",
	lookPath: exec.LookPath,
	release:  kernelRelease,
}

// CheckDebugger reports whether the process appears to be traced or
// started by a known debugger.
func CheckDebugger() Finding {
	return system.debugger()
}

// CheckVM reports hints that the host is a virtual machine
func CheckVM() Finding {
	return system.vm()
}

// CheckForensicTools reports running or installed forensic tooling
func CheckForensicTools() Finding {
	return system.forensicTools()
}

func (p probe) debugger() Finding {
	f := Finding{Name: "debugger"}

	status, err := os.ReadFile(filepath.Join(p.procRoot, "self", "status"))
	if err == nil {
		fields := parseStatus(status)
		if pid := fields["TracerPid"]; pid != "" && pid != "0" {
			f.add("traced by pid " + pid)
			if name := p.comm(pid); name != "" {
				f.add("tracer: " + name)
			}
		}
		if ppid := fields["PPid"]; ppid != "" {
			if name := p.comm(ppid); containsAny(name, debuggerNames) {
				f.add("parent process: " + name)
			}
		}
	}

	return f
}

func (p probe) vm() Finding {
	f := Finding{Name: "virtual machine"}

	for _, name := range []string{"product_name", "sys_vendor", "board_vendor", "bios_vendor"} {
		data, err := os.ReadFile(filepath.Join(p.sysRoot, "class", "dmi", "id", name))
		if err != nil {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(string(data)))
		for _, marker := range hypervisorMarkers {
			if strings.Contains(value, marker) {
				f.add(name + ": " + value)
				break
			}
		}
	}

	if cpuinfo, err := os.ReadFile(filepath.Join(p.procRoot, "cpuinfo")); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(cpuinfo))
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "flags") && hasWord(line, "hypervisor") {
				f.add("cpu hypervisor flag")
				break
			}
		}
	}

	if _, err := os.Stat(filepath.Join(p.procRoot, "xen")); err == nil {
		f.add("xen interface present")
	}

	if p.release != nil {
		if rel := strings.ToLower(p.release()); strings.Contains(rel, "microsoft") {
			f.add("kernel release: " + rel)
		}
	}

	return f
}

func (p probe) forensicTools() Finding {
	f := Finding{Name: "forensic tools"}

	entries, err := os.ReadDir(p.procRoot)
	if err == nil {
		self := strconv.Itoa(os.Getpid())
		for _, e := range entries {
			if !e.IsDir() || e.Name() == self {
				continue
			}
			if _, err := strconv.Atoi(e.Name()); err != nil {
				continue
			}
			name := p.comm(e.Name())
			for _, tool := range forensicTools {
				if name == tool {
					f.add("running: " + name + " (pid " + e.Name() + ")")
					break
				}
			}
		}
	}

	if p.lookPath != nil {
		for _, tool := range forensicTools {
			if path, err := p.lookPath(tool); err == nil {
				f.add("installed: " + path)
			}
		}
	}

	return f
}

func (p probe) comm(pid string) string {
	data, err := os.ReadFile(filepath.Join(p.procRoot, pid, "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parseStatus(data []byte) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok {
			fields[key] = strings.TrimSpace(value)
		}
	}
	return fields
}

func containsAny(name string, list []string) bool {
	if name == "" {
		return false
	}
	for _, candidate := range list {
		if name == candidate {
			return true
		}
	}
	return false
}

func hasWord(line, word string) bool {
	for _, w := range strings.Fields(line) {
		if w == word {
			return true
		}
	}
	return false
}
