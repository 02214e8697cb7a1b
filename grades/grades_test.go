package grades

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/fixture"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/session"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://portal.test"

const menuPage = `<html><body>
<form action="/up/faces/up/po/menu.jsp"><input type="hidden" name="com.sun.faces.VIEW" value="m1"></form>
<div id="menubox"><div><div class="menuhead">成績・履修登録</div>
<div class="submenu"><a onclick="return menuItemClick('5','50');">成績照会</a></div></div></div>
</body></html>`

const settingsPage = `<html><body>
<form id="form1" action="/up/faces/up/xu/Xuk00301A.jsp"><input type="hidden" name="com.sun.faces.VIEW" value="s1"></form>
</body></html>`

func row(width, subject, kind, credits, grade, score, teacher string) string {
	return `<tr><td class="kamokuList"><span class="tdBlankList" width="` + width + `"></span><span class="tdKamokuList">` + subject + `</span></td>` +
		`<td class="tdJugyoSbtList">` + kind + `</td><td class="tdTaniList">` + credits + `</td><td class="tdHyokaList">` + grade +
		`</td><td class="tdSotenList">` + score + `</td><td class="tdKyoshokuinNameList">` + teacher + `</td></tr>`
}

const header = `<tr><th>科目</th><th>種別</th><th>単位</th><th>評価</th><th>素点</th><th>教員</th></tr>`

var gradesPage = `<html><body>
<form id="form1" action="/up/faces/up/xu/Xuk00301A.jsp"><input type="hidden" name="com.sun.faces.VIEW" value="s2"></form>
<span id="form1:propShozokuGakkaRenketsuName"> 理工学部 情報学科 </span>
<span id="form1:htmlGakunen">2</span>
<span id="form1:htmlSemester">前期</span>
<div class="kamokuTitle"><div class="subTitleArea"><div class="left">2023年度前期</div></div></div>
<table class="singleTableLine">` + header +
	row("0", "共通教養科目", "", "", "", "", "") +
	row("8", "人間性・社会性科目", "", "", "", "", "") +
	row("16", "哲学", "講義", "2.0", "秀", "95", "山田 一郎") +
	row("16", "心理学", "講義", "2.0", "不可", "40", "佐藤 二郎") +
	row("0", "専門科目", "", "", "", "", "") +
	row("8", "プログラミング基礎１", "演習", "2.0", "優", "", "濵砂 幸裕") +
	`</table>
<div class="kamokuTitle"><div class="subTitleArea"><div class="left">2023年度後期</div></div></div>
<table class="singleTableLine">` + header +
	row("0", "専門科目", "", "", "", "", "") +
	row("8", "データ構造", "講義", "2.0", "良", "70", "") +
	`</table>
<table class="singleTableLine" width="100%">
<tr><td>区分</td><td>共通教養</td><td>専門</td><td></td></tr>
<tr><td>要件</td><td>20</td><td>60</td><td>-</td></tr>
<tr><td>修得</td><td>4.0 (0.0)</td><td>4.0 (2.0)</td><td>x</td></tr>
<tr><td>合計</td><td>8</td><td>8</td><td></td></tr>
</table>
</body></html>`

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

var wantGrades = []models.GradeItem{
	{Year: 2023, Semester: "前期", Category: "共通教養科目", Subcategory: "人間性・社会性科目", Subsubcategory: "哲学", Subject: "哲学", ClassType: "講義", Credits: ptrFloat(2), Grade: "秀", Score: ptrInt(95), Teacher: "山田 一郎", Indent: 2},
	{Year: 2023, Semester: "前期", Category: "共通教養科目", Subcategory: "人間性・社会性科目", Subsubcategory: "心理学", Subject: "心理学", ClassType: "講義", Credits: ptrFloat(2), Grade: "不可", Score: ptrInt(40), Teacher: "佐藤 二郎", Indent: 2},
	{Year: 2023, Semester: "前期", Category: "専門科目", Subcategory: "プログラミング基礎１", Subject: "プログラミング基礎１", ClassType: "演習", Credits: ptrFloat(2), Grade: "優", Teacher: "濵砂 幸裕", Indent: 1},
	{Year: 2023, Semester: "後期", Category: "専門科目", Subcategory: "データ構造", Subject: "データ構造", ClassType: "講義", Credits: ptrFloat(2), Grade: "良", Score: ptrInt(70), Indent: 1},
}

var wantCredits = []models.CreditSummary{
	{Category: "共通教養", EarnedCredits: 4, MediaCredits: 0, TotalCredits: 4},
	{Category: "専門", EarnedCredits: 4, MediaCredits: 2, TotalCredits: 4},
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func newSession(t *testing.T, debug session.Debug, store fixture.FS) (*session.Session, *httpmock.MockTransport) {
	t.Helper()
	s, err := session.New(session.Options{
		Site:    config.Site{BaseURL: baseURL, LoginPath: "/login.jsp"},
		Debug:   debug,
		FS:      store,
		Metrics: session.NewMetrics(),
	})
	require.NoError(t, err)
	transport := httpmock.NewMockTransport()
	s.WithTransport(transport)
	return s, transport
}

func TestParse(t *testing.T) {
	result, err := Parse(mustDoc(t, gradesPage))
	require.NoError(t, err)

	require.Equal(t, models.StudentInfo{Department: "理工学部 情報学科", Year: "2", Semester: "前期"}, result.Student)
	if diff := cmp.Diff(wantGrades, result.Grades); diff != "" {
		t.Fatalf("grades mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantCredits, result.Credits); diff != "" {
		t.Fatalf("credits mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWithoutDocument(t *testing.T) {
	_, err := Parse(nil)
	require.ErrorIs(t, err, session.ErrNoDocument)
}

func TestResultViews(t *testing.T) {
	result := &Result{Grades: wantGrades, Credits: wantCredits}

	require.Len(t, result.ByPeriod(2023, "前期"), 3)
	require.Len(t, result.ByPeriod(2023, "後期"), 1)
	require.Empty(t, result.ByPeriod(2024, "前期"))
	require.Len(t, result.ByCategory("専門科目"), 2)

	passed := result.Passed()
	require.Len(t, passed, 3)
	require.Equal(t, "心理学", result.Failed()[0].Subject)
	require.InDelta(t, 6.0, result.TotalEarnedCredits(), 1e-9)
	require.InDelta(t, 18.0/8.0, result.GPA(), 1e-9)
	require.Len(t, result.Records(), 6)
}

func TestGPAWeighting(t *testing.T) {
	result := &Result{Grades: []models.GradeItem{
		{Subject: "a", Grade: "秀", Credits: ptrFloat(2)},
		{Subject: "b", Grade: "不可", Credits: ptrFloat(2)},
	}}
	require.Equal(t, 2.0, result.GPA())

	require.Equal(t, 0.0, (&Result{}).GPA())
	unknown := &Result{Grades: []models.GradeItem{{Subject: "c", Grade: "認定", Credits: ptrFloat(2)}}}
	require.Equal(t, 0.0, unknown.GPA())
}

func TestFetchLiveThenReplay(t *testing.T) {
	store := fixture.NewMemory(nil)
	s, transport := newSession(t, session.Debug{SaveHTML: true}, store)
	s.SetDocument(mustDoc(t, menuPage))

	transport.RegisterResponder("POST", baseURL+"/up/faces/up/po/menu.jsp", func(req *http.Request) (*http.Response, error) {
		require.NoError(t, req.ParseForm())
		require.Equal(t, "5", req.PostForm.Get("header:form1:hiddenMenuNo"))
		return httpmock.NewStringResponse(http.StatusOK, settingsPage), nil
	})
	transport.RegisterResponder("POST", baseURL+"/up/faces/up/xu/Xuk00301A.jsp", func(req *http.Request) (*http.Response, error) {
		require.NoError(t, req.ParseForm())
		require.Equal(t, "s1", req.PostForm.Get("com.sun.faces.VIEW"))
		require.Equal(t, "gakki", req.PostForm.Get("form1:htmlDispPtn"))
		require.Equal(t, "表示", req.PostForm.Get("form1:viewhidden"))
		require.Equal(t, "1", req.PostForm.Get("form1:htmlHidnGpa"))
		require.Equal(t, "form1", req.PostForm.Get("form1"))
		return httpmock.NewStringResponse(http.StatusOK, gradesPage), nil
	})

	live, err := Fetch(context.Background(), s)
	require.NoError(t, err)
	if diff := cmp.Diff(wantGrades, live.Grades); diff != "" {
		t.Fatalf("live grades mismatch (-want +got):\n%s", diff)
	}

	replay, _ := newSession(t, session.Debug{Stub: true}, store)
	replayed, err := Fetch(context.Background(), replay)
	require.NoError(t, err)
	if diff := cmp.Diff(live, replayed); diff != "" {
		t.Fatalf("replay differs (-live +replay):\n%s", diff)
	}
}

func TestFetchSettingsFailures(t *testing.T) {
	s, transport := newSession(t, session.Debug{}, nil)
	s.SetDocument(mustDoc(t, menuPage))
	transport.RegisterResponder("POST", baseURL+"/up/faces/up/po/menu.jsp",
		httpmock.NewStringResponder(http.StatusOK, `<html><body><p>no form</p></body></html>`))

	_, err := Fetch(context.Background(), s)
	require.ErrorIs(t, err, ErrSettingsFormNotFound)

	s, transport = newSession(t, session.Debug{}, nil)
	s.SetDocument(mustDoc(t, menuPage))
	transport.RegisterResponder("POST", baseURL+"/up/faces/up/po/menu.jsp", httpmock.NewStringResponder(http.StatusOK, settingsPage))
	transport.RegisterResponder("POST", baseURL+"/up/faces/up/xu/Xuk00301A.jsp",
		httpmock.NewStringResponder(http.StatusOK, `<html><body>システム停止中</body></html>`))

	_, err = Fetch(context.Background(), s)
	var stateErr *session.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, session.StateMaintenance, stateErr.State)
}
