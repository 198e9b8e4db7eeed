package stages

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeScript imitates the engine: it records its argv, copies staged
// auxiliary files aside and writes the outputs each subcommand produces.
// The mode file switches failure behaviors.
const fakeScript = `#!/bin/sh
dir=@DIR@
printf '%s\n' "$@" > "$dir/argv"
mode=$(cat "$dir/mode" 2>/dev/null)
echo "fake pepsirf $1 mode=$mode"
echo "diagnostics on stderr" 1>&2
if [ "$mode" = "fail" ]; then
  echo "engine exploded" 1>&2
  exit 3
fi
sub=$1
shift
o= n= d= s= p= c= e= f= t= j= osfx= msfx=
while [ $# -gt 0 ]; do
  case "$1" in
    -o) o=$2; shift 2 ;;
    -n) n=$2; shift 2 ;;
    -d) d=$2; shift 2 ;;
    -s) s=$2; shift 2 ;;
    -p) p=$2; shift 2 ;;
    -c) c=$2; shift 2 ;;
    -e) e=$2; shift 2 ;;
    -f) f=$2; shift 2 ;;
    -t) t=$2; shift 2 ;;
    -j) j=$2; shift 2 ;;
    -m) cp "$2" "$dir/multi.copy"; shift 2 ;;
    --outfile_suffix) osfx=$2; shift 2 ;;
    --mapfile_suffix) msfx=$2; shift 2 ;;
    *) shift ;;
  esac
done
matrix='Sequence name\tS1\tS2\npep1\t1\t2\n'
if [ "$mode" = "badoutput" ]; then
  matrix='not a matrix\n'
fi
case "$sub" in
  norm|subjoin) printf "$matrix" > "$o" ;;
  bin) printf 'pep1\tpep2\n' > "$o" ;;
  zscore)
    printf "$matrix" > "$o"
    printf 'Probe name\tSample name\n' > "$n" ;;
  enrich)
    cp "$t" "$dir/thresh.copy"
    cp "$s" "$dir/pairs.copy"
    j=${j:-"~"}
    if [ "$mode" = "tuples" ]; then
      tab=$(printf '\t')
      while IFS= read -r line; do
        name=$(printf '%s\n' "$line" | sed "s/$tab/$j/g")
        printf 'pep1\n' > "$o/${name}_enriched.txt"
      done < "$s"
    elif [ "$mode" != "nothing" ]; then
      printf 'pep1\npep2\n' > "$o/s1${j}s2_enriched.txt"
    fi
    if [ -n "$f" ]; then : > "$o/$f"; fi ;;
  link) printf 'Peptide Name\tLinked Species IDs with counts\n' > "$o" ;;
  deconv)
    mkdir -p "$s"
    printf 'Species ID\tCount\n' > "$s/round_1"
    if [ -n "$osfx" ]; then
      ls "$e" > "$dir/staged.list"
      for src in "$e"/*; do
        name=$(basename "$src")
        printf 'Species Name\tCount\n' > "$o/$name$osfx"
        printf 'Peptide\tSpecies\n' > "$p/$name$msfx"
      done
    else
      printf 'Species Name\tCount\n' > "$o"
    fi ;;
  demux)
    printf "$matrix" > "$o"
    printf 'Sample name\tIndex\n' > "$d" ;;
  info)
    if [ -n "$c" ]; then printf 'Sample name\tSum\n' > "$c"; fi
    if [ -n "$s" ]; then printf 'S1\nS2\n' > "$s"; fi
    if [ -n "$p" ]; then printf 'pep1\n' > "$p"; fi ;;
esac
exit 0
`

type fakeEngine struct {
	dir     string
	bin     string
	scratch string
	logs    string
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires /bin/sh")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "pepsirf")
	script := strings.ReplaceAll(fakeScript, "@DIR@", shellQuote(dir))
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return &fakeEngine{dir: dir, bin: bin, scratch: t.TempDir(), logs: t.TempDir()}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (f *fakeEngine) runner() *Runner {
	return &Runner{Binary: f.bin, ScratchRoot: f.scratch, OutfileDir: f.logs}
}

func (f *fakeEngine) setMode(t *testing.T, mode string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "mode"), []byte(mode), 0644))
}

func (f *fakeEngine) spawned() bool {
	_, err := os.Stat(filepath.Join(f.dir, "argv"))
	return err == nil
}

var scratchName = regexp.MustCompile(`pepkit-[a-z_]+-[0-9]+`)

// argv returns the recorded arguments with the scratch directory replaced
// by SCRATCH.
func (f *fakeEngine) argv(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, "argv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	for i, l := range lines {
		l = strings.ReplaceAll(l, f.scratch+string(filepath.Separator), "")
		lines[i] = scratchName.ReplaceAllString(l, "SCRATCH")
	}
	return lines
}

func (f *fakeEngine) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	require.NoError(t, err)
	return string(data)
}

// assertScratchClean checks that no scratch directory survived.
func (f *fakeEngine) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directories left behind")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func matrixFile(t *testing.T, dir, name string) string {
	return writeFile(t, dir, name, "Sequence name\tS1\tS2\npep1\t1\t2\n")
}
