package kernel

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// TestShellBasics tests basic shell operations
func TestShellBasics(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{
			name:    "empty command",
			script:  "",
			wantErr: false,
		},
		{
			name:    "whitespace only",
			script:  "   \n  \t  ",
			wantErr: false,
		},
		{
			name:    "comment only",
			script:  "# this is a comment",
			wantErr: false,
		},
		{
			name:    "multiple semicolons",
			script:  "pwd; cd /; pwd",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()
			err = sh.Run(ctx, tt.script)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestFileOperationsEdgeCases tests edge cases in file operations
func TestFileOperationsEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(afero.Fs)
		script  string
		wantErr bool
	}{
		{
			name:    "cat non-existent file",
			script:  "cat /nonexistent.txt",
			wantErr: true,
		},
		{
			name: "cat directory",
			setup: func(fs afero.Fs) {
				fs.Mkdir("/testdir", 0755)
			},
			script:  "cat /testdir",
			wantErr: true,
		},
		{
			name:    "cd to non-existent directory",
			script:  "cd /nonexistent",
			wantErr: true,
		},
		{
			name: "cd to file",
			setup: func(fs afero.Fs) {
				afero.WriteFile(fs, "/testfile", []byte("test"), 0644)
			},
			script:  "cd /testfile",
			wantErr: true,
		},
		{
			name:    "mkdir existing directory",
			script:  "mkdir /; mkdir /",
			wantErr: true,
		},
		{
			name:    "rm non-existent file without -f",
			script:  "rm /nonexistent.txt",
			wantErr: true,
		},
		{
			name:    "rm non-existent file with -f",
			script:  "rm -f /nonexistent.txt",
			wantErr: false,
		},
		{
			name: "rm directory without -r",
			setup: func(fs afero.Fs) {
				fs.Mkdir("/testdir", 0755)
			},
			script:  "rm /testdir",
			wantErr: true,
		},
		{
			name: "mv to same location",
			setup: func(fs afero.Fs) {
				afero.WriteFile(fs, "/test.txt", []byte("test"), 0644)
			},
			script:  "mv /test.txt /test.txt",
			wantErr: false,
		},
		{
			name:    "cp non-existent file",
			script:  "cp /nonexistent.txt /dest.txt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.setup != nil {
				tt.setup(fs)
			}

			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()
			err = sh.Run(ctx, tt.script)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestPathTraversal tests path resolution edge cases
func TestPathTraversal(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		check    string
		expected string
	}{
		{
			name:     "parent directory navigation",
			setup:    "mkdir -p /a/b/c && cd /a/b/c && cd ..",
			check:    "pwd",
			expected: "/a/b",
		},
		{
			name:     "multiple parent directories",
			setup:    "mkdir -p /a/b/c && cd /a/b/c && cd ../..",
			check:    "pwd",
			expected: "/a",
		},
		{
			name:     "root parent directory",
			setup:    "cd / && cd ..",
			check:    "pwd",
			expected: "/",
		},
		{
			name:     "current directory",
			setup:    "mkdir -p /test && cd /test && cd .",
			check:    "pwd",
			expected: "/test",
		},
		{
			name:     "complex path",
			setup:    "mkdir -p /a/b && cd /a/./b/../b",
			check:    "pwd",
			expected: "/a/b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			// Capture output
			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			if err := sh.Run(ctx, tt.setup); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}

			stdout.Reset()
			if err := sh.Run(ctx, tt.check); err != nil {
				t.Fatalf("Check failed: %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestEnvironmentVariablesEdgeCases tests environment variable edge cases
func TestEnvironmentVariablesEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected string
	}{
		{
			name:     "unset variable expansion",
			script:   "echo $NONEXISTENT",
			expected: "",
		},
		{
			name:     "empty variable",
			script:   "export EMPTY='' && echo x${EMPTY}x",
			expected: "xx",
		},
		{
			name:     "variable with spaces",
			script:   "export VAR='hello world' && echo $VAR",
			expected: "hello world",
		},
		{
			name:     "variable with special chars",
			script:   "export VAR='a|b&c' && echo $VAR",
			expected: "a|b&c",
		},
		{
			name:     "multiple exports on one line",
			script:   "export A=1 B=2 && echo $A $B",
			expected: "1 2",
		},
		{
			name:     "unset then use",
			script:   "export VAR=test && unset VAR && echo x${VAR}x",
			expected: "xx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			if err := sh.Run(ctx, tt.script); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestRedirectionEdgeCases tests redirection edge cases
func TestRedirectionEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		checkCmd string
		expected string
		wantErr  bool
	}{
		{
			name:     "redirect to new file",
			script:   "echo test > /out.txt",
			checkCmd: "cat /out.txt",
			expected: "test",
		},
		{
			name:     "redirect empty output",
			script:   "echo -n '' > /empty.txt",
			checkCmd: "cat /empty.txt",
			expected: "",
		},
		{
			name:     "append to new file",
			script:   "echo test >> /out.txt",
			checkCmd: "cat /out.txt",
			expected: "test",
		},
		{
			name:     "multiple redirects",
			script:   "echo a > /f.txt && echo b >> /f.txt && echo c >> /f.txt",
			checkCmd: "cat /f.txt",
			expected: "a\nb\nc",
		},
		{
			name:     "redirect overwrite",
			script:   "echo old > /f.txt && echo new > /f.txt",
			checkCmd: "cat /f.txt",
			expected: "new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			err = sh.Run(ctx, tt.script)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				stdout.Reset()
				if err := sh.Run(ctx, tt.checkCmd); err != nil {
					t.Fatalf("Check command failed: %v", err)
				}

				output := strings.TrimSpace(stdout.String())
				if output != tt.expected {
					t.Errorf("Expected %q, got %q", tt.expected, output)
				}
			}
		})
	}
}

// TestPipesEdgeCases tests pipe edge cases
func TestPipesEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		script   string
		expected string
	}{
		{
			name:     "empty pipe",
			setup:    "echo '' > /f.txt",
			script:   "cat /f.txt | cat",
			expected: "",
		},
		{
			name:     "pipe chain",
			setup:    "echo -e 'a\\nb\\nc' > /f.txt",
			script:   "cat /f.txt | cat | cat",
			expected: "a\nb\nc",
		},
		{
			name:     "pipe with grep match",
			setup:    "echo 'hello world' > /f.txt",
			script:   "cat /f.txt | grep hello",
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()
			if tt.setup != "" {
				if err := sh.Run(ctx, tt.setup); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			if err := sh.Run(ctx, tt.script); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestTextProcessingEdgeCases tests text processing edge cases
func TestTextProcessingEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		script   string
		expected string
	}{
		{
			name:     "grep empty file",
			setup:    "touch /empty.txt",
			script:   "grep pattern /empty.txt",
			expected: "",
		},
		{
			name:     "head empty file",
			setup:    "touch /empty.txt",
			script:   "head /empty.txt",
			expected: "",
		},
		{
			name:     "tail empty file",
			setup:    "touch /empty.txt",
			script:   "tail /empty.txt",
			expected: "",
		},
		{
			name:     "wc empty file",
			setup:    "touch /empty.txt",
			script:   "wc /empty.txt",
			expected: "0       0       0 /empty.txt",
		},
		{
			name:     "sort empty input",
			script:   "echo '' | sort",
			expected: "",
		},
		{
			name:     "uniq single line",
			setup:    "echo 'test' > /f.txt",
			script:   "uniq /f.txt",
			expected: "test",
		},
		{
			name:     "find in empty directory",
			setup:    "mkdir /empty",
			script:   "find /empty -type f",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()
			if tt.setup != "" {
				if err := sh.Run(ctx, tt.setup); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			if err := sh.Run(ctx, tt.script); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestControlFlowEdgeCases tests control flow edge cases
func TestControlFlowEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected string
	}{
		{
			name: "if with false condition",
			script: `if false; then
				echo yes
			else
				echo no
			fi`,
			expected: "no",
		},
		{
			name: "nested if",
			script: `if true; then
				if true; then
					echo nested
				fi
			fi`,
			expected: "nested",
		},
		{
			name: "for loop with empty list",
			script: `for x in ; do
				echo $x
			done`,
			expected: "",
		},
		{
			name: "for loop single item",
			script: `for x in single; do
				echo $x
			done`,
			expected: "single",
		},
		{
			name:     "test false conditions",
			script:   "[ -f /nonexistent ] && echo yes || echo no",
			expected: "no",
		},
		{
			name:     "test string equality",
			script:   "[ 'a' = 'a' ] && echo yes || echo no",
			expected: "yes",
		},
		{
			name:     "test string inequality",
			script:   "[ 'a' = 'b' ] && echo yes || echo no",
			expected: "no",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			if err := sh.Run(ctx, tt.script); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestSpecialCharactersInFilenames tests handling of special characters
func TestSpecialCharactersInFilenames(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected string
		wantErr  bool
	}{
		{
			name:     "filename with spaces",
			script:   "echo test > '/file with spaces.txt' && cat '/file with spaces.txt'",
			expected: "test",
		},
		{
			name:     "filename with dash",
			script:   "echo test > /test-file.txt && cat /test-file.txt",
			expected: "test",
		},
		{
			name:     "filename with underscore",
			script:   "echo test > /test_file.txt && cat /test_file.txt",
			expected: "test",
		},
		{
			name:     "filename with dots",
			script:   "echo test > /test.file.txt && cat /test.file.txt",
			expected: "test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			err = sh.Run(ctx, tt.script)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				output := strings.TrimSpace(stdout.String())
				if output != tt.expected {
					t.Errorf("Expected %q, got %q", tt.expected, output)
				}
			}
		})
	}
}

// TestCommandChaining tests command chaining edge cases
func TestCommandChaining(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected string
	}{
		{
			name:     "AND with success",
			script:   "true && echo yes",
			expected: "yes",
		},
		{
			name:     "AND with failure",
			script:   "false && echo yes",
			expected: "",
		},
		{
			name:     "OR with success",
			script:   "true || echo no",
			expected: "",
		},
		{
			name:     "OR with failure",
			script:   "false || echo yes",
			expected: "yes",
		},
		{
			name:     "complex chaining",
			script:   "true && true && echo yes",
			expected: "yes",
		},
		{
			name:     "mixed chaining",
			script:   "false && echo no || echo yes",
			expected: "yes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			ctx := context.Background()
			if err := sh.Run(ctx, tt.script); err != nil {
				// Some commands are expected to have non-zero exit
				// Only fail on actual errors, not exit status
				if !strings.Contains(err.Error(), "exit status") {
					t.Fatalf("Run() error = %v", err)
				}
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}

// TestScriptingEdgeCases tests complex scripting scenarios
func TestScriptingEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		script   string
		expected string
		wantErr  bool
	}{
		{
			name: "multiline script basic",
			script: `echo line1
echo line2
echo line3`,
			expected: "line1\nline2\nline3",
		},
		{
			name: "script with variables",
			script: `export NAME=World
echo "Hello $NAME"`,
			expected: "Hello World",
		},
		{
			name: "redirect multiple lines to file",
			script: `echo line1 > /test.txt
echo line2 >> /test.txt
echo line3 >> /test.txt
cat /test.txt`,
			expected: "line1\nline2\nline3",
		},
		{
			name: "while loop basic",
			script: `i=0
while [ $i -lt 3 ]; do
  echo $i
  i=$((i + 1))
done`,
			expected: "0\n1\n2",
		},
		{
			name: "nested loops",
			script: `for i in 1 2; do
  for j in a b; do
    echo $i$j
  done
done`,
			expected: "1a\n1b\n2a\n2b",
		},
		{
			name: "complex script with functions",
			script: `func() {
  echo "arg: $1"
}
func hello
func world`,
			expected: "arg: hello\narg: world",
		},
		{
			name: "variable in different quote contexts",
			script: `VAR=test
echo $VAR
echo "$VAR"
echo '$VAR'`,
			expected: "test\ntest\n$VAR",
		},
		{
			name: "exit code handling",
			script: `false
echo "after false: $?"
true
echo "after true: $?"`,
			expected: "after false: 1\nafter true: 0",
		},
		{
			name: "multiline command with backslash",
			script: `echo hello \
world \
test`,
			expected: "hello world test",
		},
		{
			name: "combined redirections",
			script: `echo stdout > /test.txt
echo stderr >&2
cat /test.txt`,
			expected: "stderr\nstdout",
		},
		{
			name: "variable arithmetic",
			script: `a=5
b=3
echo $((a + b))
echo $((a - b))
echo $((a * b))`,
			expected: "8\n2\n15",
		},
		{
			name: "array-like iteration",
			script: `for item in apple banana cherry; do
  echo "fruit: $item"
done`,
			expected: "fruit: apple\nfruit: banana\nfruit: cherry",
		},
		{
			name: "case statement",
			script: `var=apple
case $var in
  apple)
    echo "is apple"
    ;;
  banana)
    echo "is banana"
    ;;
  *)
    echo "other"
    ;;
esac`,
			expected: "is apple",
		},
		{
			name: "command substitution via export",
			script: `export DIR=/home
echo "Custom dir: $DIR"`,
			expected: "Custom dir: /home",
		},
		{
			name: "nested if statements",
			script: `a=5
if [ $a -gt 3 ]; then
  if [ $a -lt 10 ]; then
    echo "between 3 and 10"
  else
    echo "greater than 10"
  fi
else
  echo "less than or equal to 3"
fi`,
			expected: "between 3 and 10",
		},
		{
			name: "multiple commands per line",
			script: `a=1; b=2; c=3; echo $a $b $c`,
			expected: "1 2 3",
		},
		{
			name: "read from file in loop",
			script: `echo -e "line1\nline2\nline3" > /input.txt
while read line; do
  echo "read: $line"
done < /input.txt`,
			expected: "read: line1\nread: line2\nread: line3",
		},
		{
			name: "complex pipeline with filtering",
			script: `echo -e "apple\nbanana\norange\ngrape" > /f.txt
cat /f.txt | grep a | sort`,
			expected: "apple\nbanana\ngrape\norange",
		},
		{
			name: "error handling with OR operator",
			setup:   "echo 'correct' > /test.txt",
			script:  "echo start && (false || echo 'handled') && cat /test.txt",
			expected: "start\nhandled\ncorrect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()
			if tt.setup != "" {
				if err := sh.Run(ctx, tt.setup); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			err = sh.Run(ctx, tt.script)
			if (err != nil) != tt.wantErr {
				// Allow exit status errors for commands that might fail
				if err != nil && !strings.Contains(err.Error(), "exit status") {
					t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
				}
			}

			if !tt.wantErr {
				output := strings.TrimSpace(stdout.String())
				if output != tt.expected {
					t.Errorf("Expected %q, got %q", tt.expected, output)
				}
			}
		})
	}
}

// TestComplexScenarios tests realistic complex usage scenarios
func TestComplexScenarios(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		checkScript string
		expected    string
	}{
		{
			name: "data processing pipeline",
			script: `
# Create sample data
echo Alice > /data.txt
echo Bob >> /data.txt
echo Charlie >> /data.txt
`,
			checkScript: "cat /data.txt | sort",
			expected:    "Alice\nBob\nCharlie",
		},
		{
			name: "file management script",
			script: `
# Create directory structure
mkdir -p /project/src /project/bin /project/docs

# Create files
touch /project/src/main.go
touch /project/src/utils.go
touch /project/docs/README.md
`,
			checkScript: "find /project -type f | sort",
			expected:    "/project/docs/README.md\n/project/src/main.go\n/project/src/utils.go",
		},
		{
			name: "log processing",
			script: `
# Create log file
echo "2024-01-01 INFO Starting" > /app.log
echo "2024-01-01 ERROR Failed" >> /app.log
echo "2024-01-01 INFO Retrying" >> /app.log
echo "2024-01-01 ERROR Failed again" >> /app.log
echo "2024-01-01 INFO Success" >> /app.log
`,
			checkScript: "grep -c ERROR /app.log",
			expected:    "/app.log:2",
		},
		{
			name: "configuration file generation",
			script: `
export APP_NAME=MyApp
export APP_PORT=8080
export APP_ENV=production

echo "[application]" > /config.ini
echo "name=$APP_NAME" >> /config.ini
echo "port=$APP_PORT" >> /config.ini
echo "environment=$APP_ENV" >> /config.ini
`,
			checkScript: "cat /config.ini",
			expected:    "[application]\nname=MyApp\nport=8080\nenvironment=production",
		},
		{
			name: "batch file processing",
			script: `
# Create multiple files
for i in 1 2 3 4 5; do
  echo "File number $i" > /file$i.txt
done
`,
			checkScript: "find / -name 'file*.txt' -type f | sort",
			expected:    "//file1.txt\n//file2.txt\n//file3.txt\n//file4.txt\n//file5.txt",
		},
		{
			name: "text transformation",
			script: `
# Create input
echo apple > /input.txt
echo banana >> /input.txt
echo apple >> /input.txt
echo cherry >> /input.txt
echo banana >> /input.txt
`,
			checkScript: "cat /input.txt",
			expected:    "apple\nbanana\napple\ncherry\nbanana",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			sh, err := NewShell(fs)
			if err != nil {
				t.Fatalf("NewShell() error = %v", err)
			}

			ctx := context.Background()

			// Run the main script
			var setupOut strings.Builder
			sh.SetIO(strings.NewReader(""), &setupOut, &setupOut)
			if err := sh.Run(ctx, tt.script); err != nil {
				// Allow some commands to fail in complex scenarios
				if !strings.Contains(err.Error(), "exit status") {
					t.Fatalf("Script execution failed: %v", err)
				}
			}

			// Run check script and verify
			var stdout strings.Builder
			sh.SetIO(strings.NewReader(""), &stdout, &stdout)

			if err := sh.Run(ctx, tt.checkScript); err != nil {
				t.Fatalf("Check script failed: %v", err)
			}

			output := strings.TrimSpace(stdout.String())
			if output != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, output)
			}
		})
	}
}
