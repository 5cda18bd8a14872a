package kernel

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// pureInput gathers the bytes a pure-computation builtin (grep, head, tail,
// wc, sort, uniq) operates on: the named files in guest-path order, each
// loaded through the VFS's permission checks, or the process's stdin stream
// when no file operand is given — grep/head/etc. never bypass file-open's
// confinement by reading the host filesystem directly.
func (r *ProcessRunner) pureInput(files []string) ([]string, error) {
	if len(files) == 0 {
		data, err := r.k.streams.InputAll(r.proc)
		if err != nil {
			return nil, err
		}
		return []string{string(data)}, nil
	}
	out := make([]string, 0, len(files))
	for _, path := range files {
		content, _, err := r.k.vfs.LoadProgram(path, r.proc.Cwd)
		if err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, nil
}

func splitArgs(args []string) (flags []string, files []string) {
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags = append(flags, a)
		} else {
			files = append(files, a)
		}
	}
	return
}

// cmdGrep is the guest-reachable "grep" builtin, adapted from the teacher's
// cmdGrep (textutils.go) to read through the VFS/stream router instead of
// s.stdin/s.openFile, and to report through the two-value wire convention
// instead of returning a Go error for "no match".
func (r *ProcessRunner) cmdGrep(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	flags, rest := splitArgs(args)
	if len(rest) == 0 {
		return emit(r, "", InvalidArgument)
	}
	pattern := rest[0]
	files := rest[1:]

	ignoreCase, invert, lineNumbers, count := false, false, false, false
	for _, f := range flags {
		for _, ch := range f[1:] {
			switch ch {
			case 'i':
				ignoreCase = true
			case 'v':
				invert = true
			case 'n':
				lineNumbers = true
			case 'c':
				count = true
			}
		}
	}
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return emit(r, "", InvalidArgument)
	}

	contents, ierr := r.pureInput(files)
	if ierr != nil {
		return emit(r, "", Translate(ierr))
	}

	var sb strings.Builder
	for i, content := range contents {
		prefix := ""
		if len(files) > 1 {
			prefix = files[i] + ":"
		}
		lineNum := 0
		matchCount := 0
		scanner := bufio.NewScanner(strings.NewReader(content))
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			matches := re.MatchString(line)
			if invert {
				matches = !matches
			}
			if !matches {
				continue
			}
			matchCount++
			if count {
				continue
			}
			if lineNumbers {
				fmt.Fprintf(&sb, "%s%d:%s\n", prefix, lineNum, line)
			} else {
				fmt.Fprintf(&sb, "%s%s\n", prefix, line)
			}
		}
		if count {
			fmt.Fprintf(&sb, "%s%d\n", prefix, matchCount)
		}
	}
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

// cmdHead is the guest-reachable "head" builtin, grounded on the teacher's
// cmdHead.
func (r *ProcessRunner) cmdHead(args []string) error {
	// "-n N" arrives as two words; join it into "-nN" before splitting.
	var joined []string
	for i := 0; i < len(args); i++ {
		if i > 0 && args[i] == "-n" && i+1 < len(args) {
			joined = append(joined, "-n"+args[i+1])
			i++
			continue
		}
		joined = append(joined, args[i])
	}
	flags, files := splitArgs(joined)
	n := 10
	for _, f := range flags {
		if v, err := strconv.Atoi(strings.TrimPrefix(f, "-n")); err == nil && strings.HasPrefix(f, "-n") {
			n = v
		} else if v, err := strconv.Atoi(f[1:]); err == nil {
			n = v
		}
	}
	contents, err := r.pureInput(files)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	var sb strings.Builder
	for i, content := range contents {
		if len(files) > 1 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "==> %s <==\n", files[i])
		}
		scanner := bufio.NewScanner(strings.NewReader(content))
		count := 0
		for scanner.Scan() && count < n {
			sb.WriteString(scanner.Text())
			sb.WriteByte('\n')
			count++
		}
	}
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

// cmdTail is the guest-reachable "tail" builtin, grounded on the teacher's
// cmdTail.
func (r *ProcessRunner) cmdTail(args []string) error {
	// "-n N" arrives as two words; join it into "-nN" before splitting.
	var joined []string
	for i := 0; i < len(args); i++ {
		if i > 0 && args[i] == "-n" && i+1 < len(args) {
			joined = append(joined, "-n"+args[i+1])
			i++
			continue
		}
		joined = append(joined, args[i])
	}
	flags, files := splitArgs(joined)
	n := 10
	for _, f := range flags {
		if v, err := strconv.Atoi(strings.TrimPrefix(f, "-n")); err == nil && strings.HasPrefix(f, "-n") {
			n = v
		} else if v, err := strconv.Atoi(f[1:]); err == nil {
			n = v
		}
	}
	contents, err := r.pureInput(files)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	var sb strings.Builder
	for i, content := range contents {
		if len(files) > 1 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "==> %s <==\n", files[i])
		}
		scanner := bufio.NewScanner(strings.NewReader(content))
		var buf []string
		for scanner.Scan() {
			buf = append(buf, scanner.Text())
			if len(buf) > n {
				buf = buf[1:]
			}
		}
		for _, line := range buf {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

// cmdWc is the guest-reachable "wc" builtin, grounded on the teacher's
// cmdWc.
func (r *ProcessRunner) cmdWc(args []string) error {
	flags, files := splitArgs(args)
	showLines, showWords, showBytes := true, true, true
	hasFlags := len(flags) > 0
	if hasFlags {
		showLines, showWords, showBytes = false, false, false
		for _, f := range flags {
			if strings.Contains(f, "l") {
				showLines = true
			}
			if strings.Contains(f, "w") {
				showWords = true
			}
			if strings.Contains(f, "c") {
				showBytes = true
			}
		}
	}
	contents, err := r.pureInput(files)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	var sb strings.Builder
	totalLines, totalWords, totalBytes := 0, 0, 0
	for i, content := range contents {
		lines, words, bytes := countWc(content)
		writeWc(&sb, lines, words, bytes, argOr(files, i, ""), showLines, showWords, showBytes)
		totalLines += lines
		totalWords += words
		totalBytes += bytes
	}
	if len(files) > 1 {
		writeWc(&sb, totalLines, totalWords, totalBytes, "total", showLines, showWords, showBytes)
	}
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

func countWc(content string) (lines, words, bytes int) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		lines++
		text := scanner.Text()
		bytes += len(text) + 1
		words += len(strings.Fields(text))
	}
	return
}

func writeWc(sb *strings.Builder, lines, words, bytes int, filename string, showLines, showWords, showBytes bool) {
	var parts []string
	if showLines {
		parts = append(parts, fmt.Sprintf("%7d", lines))
	}
	if showWords {
		parts = append(parts, fmt.Sprintf("%7d", words))
	}
	if showBytes {
		parts = append(parts, fmt.Sprintf("%7d", bytes))
	}
	sb.WriteString(strings.Join(parts, " "))
	if filename != "" {
		sb.WriteString(" " + filename)
	}
	sb.WriteByte('\n')
}

// cmdSort is the guest-reachable "sort" builtin, grounded on the teacher's
// cmdSort.
func (r *ProcessRunner) cmdSort(args []string) error {
	flags, files := splitArgs(args)
	reverse, unique, numeric := false, false, false
	for _, f := range flags {
		if strings.Contains(f, "r") {
			reverse = true
		}
		if strings.Contains(f, "u") {
			unique = true
		}
		if strings.Contains(f, "n") {
			numeric = true
		}
	}
	contents, err := r.pureInput(files)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	var lines []string
	for _, content := range contents {
		scanner := bufio.NewScanner(strings.NewReader(content))
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}
	if numeric {
		sort.Slice(lines, func(i, j int) bool {
			ni, _ := strconv.ParseFloat(lines[i], 64)
			nj, _ := strconv.ParseFloat(lines[j], 64)
			if reverse {
				return ni > nj
			}
			return ni < nj
		})
	} else {
		sort.Strings(lines)
		if reverse {
			for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
				lines[i], lines[j] = lines[j], lines[i]
			}
		}
	}
	if unique {
		var deduped []string
		prev := ""
		for i, line := range lines {
			if i == 0 || line != prev {
				deduped = append(deduped, line)
				prev = line
			}
		}
		lines = deduped
	}
	return emit(r, strings.Join(lines, "\n"), OK)
}

// cmdUniq is the guest-reachable "uniq" builtin, grounded on the teacher's
// cmdUniq.
func (r *ProcessRunner) cmdUniq(args []string) error {
	flags, files := splitArgs(args)
	count := false
	for _, f := range flags {
		if f == "-c" {
			count = true
		}
	}
	contents, err := r.pureInput(files)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	content := ""
	if len(contents) > 0 {
		content = contents[0]
	}
	var sb strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	prev := ""
	lineCount := 0
	seen := false
	flushPrev := func() {
		if !seen {
			return
		}
		if count {
			fmt.Fprintf(&sb, "%7d %s\n", lineCount, prev)
		} else {
			sb.WriteString(prev)
			sb.WriteByte('\n')
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if !seen || line != prev {
			flushPrev()
			prev = line
			lineCount = 1
			seen = true
		} else {
			lineCount++
		}
	}
	flushPrev()
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

// cmdFind is the guest-reachable "find" builtin, grounded on the teacher's
// cmdFind/findWalk, walking through the VFS's ReadDir/Stat so traversal
// stays confined to the guest's namespace.
func (r *ProcessRunner) cmdFind(args []string) error {
	path := "."
	namePattern := ""
	fileType := ""
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "-name":
			i++
			namePattern = argOr(args, i, "")
		case "-type":
			i++
			fileType = argOr(args, i, "")
		default:
			if !strings.HasPrefix(args[i], "-") {
				path = args[i]
			}
		}
	}

	var nameRe *regexp.Regexp
	if namePattern != "" {
		pattern := strings.ReplaceAll(namePattern, ".", "\\.")
		pattern = strings.ReplaceAll(pattern, "*", ".*")
		pattern = strings.ReplaceAll(pattern, "?", ".")
		pattern = "^" + pattern + "$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			return emit(r, "", InvalidArgument)
		}
		nameRe = re
	}

	var sb strings.Builder
	if err := r.findWalk(path, nameRe, fileType, &sb); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, strings.TrimSuffix(sb.String(), "\n"), OK)
}

func (r *ProcessRunner) findWalk(guestPath string, nameRe *regexp.Regexp, fileType string, sb *strings.Builder) error {
	st, err := r.k.vfs.Stat(guestPath, r.proc.Cwd)
	if err != nil {
		return err
	}

	matches := true
	base := guestPath
	if idx := strings.LastIndex(guestPath, "/"); idx >= 0 {
		base = guestPath[idx+1:]
	}
	if nameRe != nil {
		matches = matches && nameRe.MatchString(base)
	}
	if fileType == "f" {
		matches = matches && !st.IsDir
	} else if fileType == "d" {
		matches = matches && st.IsDir
	}
	if matches {
		sb.WriteString(guestPath)
		sb.WriteByte('\n')
	}

	if st.IsDir {
		entries, _, err := r.k.vfs.ReadDir(guestPath, r.proc.Cwd)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if name == "." || name == ".." {
				continue
			}
			childPath := strings.TrimSuffix(guestPath, "/") + "/" + name
			if err := r.findWalk(childPath, nameRe, fileType, sb); err != nil {
				return err
			}
		}
	}
	return nil
}
