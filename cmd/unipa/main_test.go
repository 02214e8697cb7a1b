package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/fixture"
	"github.com/aluiziolira/go-unipa/grades"
)

const landingPage = `<html><body>
<div id="account"><span class="middle">近大 太郎&nbsp;さん&nbsp;前回ログイン 2024/04/01 10:00</span></div>
<form id="form1" action="/up/faces/up/po/Poa00601A.jsp"><input type="hidden" name="com.sun.faces.VIEW" value="v1"></form>
<div id="menubox">
<div><div class="menuhead">時間割・授業</div>
<div class="submenu"><a onclick="return menuItemClick('1','10');">学生時間割表</a></div></div>
<div><div class="menuhead">成績・履修登録</div>
<div class="submenu"><a onclick="return menuItemClick('2','20');">成績照会</a></div></div>
</div>
</body></html>`

func gradeRow(width, subject, credits, grade, score string) string {
	return `<tr><td class="kamokuList"><span class="tdBlankList" width="` + width + `"></span><span class="tdKamokuList">` + subject + `</span></td>` +
		`<td class="tdTaniList">` + credits + `</td><td class="tdHyokaList">` + grade + `</td><td class="tdSotenList">` + score + `</td></tr>`
}

var gradesPage = `<html><body>
<div class="kamokuTitle"><div class="subTitleArea"><div class="left">2023年度前期</div></div></div>
<table class="singleTableLine"><tr><th>科目</th><th>単位</th><th>評価</th><th>素点</th></tr>` +
	gradeRow("0", "専門科目", "", "", "") +
	gradeRow("8", "データ構造", "2.0", "秀", "95") +
	gradeRow("8", "アルゴリズム", "2.0", "不可", "40") +
	`</table>
<table class="singleTableLine" width="100%">
<tr><td>区分</td><td>共通教養</td><td>専門</td></tr>
<tr><td>修得</td><td>4.0 (0.0)</td><td>2.0 (2.0)</td></tr>
<tr><td>合計</td><td>4</td><td>2</td></tr>
</table>
</body></html>`

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func stubFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	site, ok := config.LookupSite(config.DefaultSite)
	if !ok {
		t.Fatalf("default site missing")
	}
	if err := fixture.Dir(dir).Write(fixture.Slug(site.LoginPath, ""), landingPage); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := fixture.Dir(dir).Write(fixture.Key(grades.StubKey), gradesPage); err != nil {
		t.Fatalf("write grades fixture: %v", err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"UNIPA_USER_ID", "UNIPA_PLAIN_PASSWORD", "UNIPA_SITE", "UNIPA_STUB", "UNIPA_FIXTURES", "UNIPA_METRICS_ADDR"} {
		t.Setenv(key, "")
	}
	cmd, err := newRootCmd()
	if err != nil {
		t.Fatalf("new root command: %v", err)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestLoginCommandStub(t *testing.T) {
	dir := stubFixtures(t)
	out, err := run(t, "--stub", "--fixtures", dir, "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "近大 太郎") {
		t.Fatalf("output missing account name:\n%s", out)
	}
}

func TestMenuCommandStub(t *testing.T) {
	dir := stubFixtures(t)
	out, err := run(t, "--stub", "--fixtures", dir, "menu")
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	for _, want := range []string{"学生時間割表", "成績照会", "2/20"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAttendanceCommandExportsCSV(t *testing.T) {
	dir := stubFixtures(t)
	output := filepath.Join(dir, "export", "attendance.csv")
	out, err := run(t, "--stub", "--fixtures", dir, "-o", output, "attendance")
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}
	if !strings.Contains(out, "プログラミング基礎１") {
		t.Fatalf("output missing subject:\n%s", out)
	}

	if rows := readCSV(t, output); len(rows) != 11 {
		t.Fatalf("exported rows = %d, want header plus 10", len(rows))
	}
}

func TestGradesCommandExportsCSVPerKind(t *testing.T) {
	dir := stubFixtures(t)
	output := filepath.Join(dir, "grades.csv")
	out, err := run(t, "--stub", "--fixtures", dir, "-o", output, "grades")
	if err != nil {
		t.Fatalf("grades: %v", err)
	}
	if !strings.Contains(out, "データ構造") || !strings.Contains(out, "2.00") {
		t.Fatalf("output missing grades or GPA:\n%s", out)
	}

	rows := readCSV(t, output)
	if len(rows) != 3 || rows[0][0] != "year" {
		t.Fatalf("grades rows = %v", rows)
	}
	if rows[1][5] != "データ構造" && rows[2][5] != "データ構造" {
		t.Fatalf("grades export missing subject: %v", rows)
	}

	credits := readCSV(t, filepath.Join(dir, "grades.credits.csv"))
	if len(credits) != 3 || credits[0][0] != "category" {
		t.Fatalf("credits rows = %v", credits)
	}
}

func TestGradesCommandDualExport(t *testing.T) {
	dir := stubFixtures(t)
	if _, err := run(t, "--stub", "--fixtures", dir, "--format", "dual", "-o", filepath.Join(dir, "grades.out"), "grades"); err != nil {
		t.Fatalf("grades dual: %v", err)
	}
	for _, name := range []string{"grades.csv", "grades.credits.csv", "grades.jsonl"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", name)
		}
	}
}

func TestServeRefreshesUntilCancelled(t *testing.T) {
	dir := stubFixtures(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, err := runContext(t, ctx, "--stub", "--fixtures", dir, "--metrics-addr", "127.0.0.1:0", "serve", "--interval", "1h")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	for _, want := range []string{"cycle 1: grades 4", "cycle 1: attendance 10", "cycle 1: notice 8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cycle 2") {
		t.Fatalf("refreshed before the interval elapsed:\n%s", out)
	}
}

func TestServeRequiresMetricsAddr(t *testing.T) {
	dir := stubFixtures(t)
	if _, err := run(t, "--stub", "--fixtures", dir, "serve"); err == nil {
		t.Fatalf("expected error without --metrics-addr")
	}
}

func TestNoticeCommandFilters(t *testing.T) {
	dir := stubFixtures(t)
	out, err := run(t, "--stub", "--fixtures", dir, "notice", "--unread", "--priority", "high")
	if err != nil {
		t.Fatalf("notice: %v", err)
	}
	if !strings.Contains(out, "システムメンテナンス") || !strings.Contains(out, "前期試験時間割発表") {
		t.Fatalf("output missing unread high priority notices:\n%s", out)
	}
	if strings.Contains(out, "台風") {
		t.Fatalf("read notice listed:\n%s", out)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	dir := stubFixtures(t)
	if _, err := run(t, "--stub", "--fixtures", dir, "--format", "xml", "login"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := run(t, "login"); err == nil {
		t.Fatalf("expected error for live login without credentials")
	}
}
