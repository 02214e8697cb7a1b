package attendance

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
<div id="menubox"><div><div class="menuhead">学生サービス</div>
<div class="submenu">
<a onclick="return menuItemClick('7','70');">出席に関する注意事項</a>
<a onclick="return menuItemClick('7','71');">出席状況確認</a>
</div></div></div>
</body></html>`

const attendancePage = `<html><body>
<table><tr><td>学籍番号 12345</td></tr></table>
<table>
<tr><th>日付</th><th>時限</th><th>科目</th><th>教員</th><th>出欠</th><th>備考</th></tr>
<tr><td>2024/4/8</td><td>1</td><td>英語</td><td>田中</td><td>○</td><td></td></tr>
<tr><td>2024年4月15日</td><td>1限</td><td>英語</td><td>田中</td><td>△</td><td>電車遅延</td></tr>
<tr><td>2024/04/22</td><td> 2 </td><td>数学</td><td>鈴木</td><td>忌引</td></tr>
<tr><td>2024/04/29</td><td>2</td><td>数学</td><td></td><td>欠席</td></tr>
<tr><td>集計</td><td>3</td></tr>
<tr><td>2024/05/06</td><td>2</td><td>数学</td><td>鈴木</td><td>??</td></tr>
</table>
</body></html>`

var wantParsed = []models.AttendanceItem{
	{Date: "2024-04-08", Period: 1, Subject: "英語", Teacher: "田中", Status: models.StatusPresent},
	{Date: "2024-04-15", Period: 1, Subject: "英語", Teacher: "田中", Status: models.StatusLate, Note: "電車遅延"},
	{Date: "2024-04-22", Period: 2, Subject: "数学", Teacher: "鈴木", Status: models.StatusBereavement},
	{Date: "2024-05-06", Period: 2, Subject: "数学", Teacher: "鈴木", Status: models.StatusUnknown},
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
	result := Parse(mustDoc(t, attendancePage))
	if diff := cmp.Diff(wantParsed, result.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, result.skipped)
}

func TestParseWithoutTable(t *testing.T) {
	require.Empty(t, Parse(mustDoc(t, "<html><body><p>データがありません</p></body></html>")).Items)
	require.Empty(t, Parse(nil).Items)
}

func TestStubResultRates(t *testing.T) {
	result := StubResult()
	require.Len(t, result.Items, 10)

	// 7 of 10 meetings were attended, late or left early.
	require.Equal(t, 70.0, result.OverallRate())

	counts := result.StatusCounts()
	require.Len(t, counts, len(models.AttendanceStatuses))
	total := 0
	for _, n := range counts {
		total += n
	}
	require.Equal(t, len(result.Items), total)
	require.Equal(t, 5, counts[models.StatusPresent])
	require.Equal(t, 0, counts[models.StatusSick])

	summaries := result.SubjectSummaries()
	require.Len(t, summaries, 2)
	require.Equal(t, models.AttendanceSummary{
		Subject: "プログラミング基礎１", Teacher: "濵砂　幸裕",
		TotalClasses: 5, AttendedClasses: 2, AbsentClasses: 1, LateClasses: 1, ExcusedAbsences: 1,
		AttendanceRate: 60,
	}, summaries[0])
	require.Equal(t, 80.0, summaries[1].AttendanceRate)

	for _, s := range summaries {
		require.GreaterOrEqual(t, s.AttendanceRate, 0.0)
		require.LessOrEqual(t, s.AttendanceRate, 100.0)
	}
}

func TestLowAttendanceSubjects(t *testing.T) {
	result := StubResult()
	tests := []struct {
		threshold float64
		want      []string
	}{
		{threshold: DefaultLowThreshold, want: []string{"プログラミング基礎１"}},
		{threshold: 60, want: nil},
		{threshold: 80.01, want: []string{"プログラミング基礎１", "基礎線形代数学１"}},
	}
	for _, tt := range tests {
		var got []string
		for _, s := range result.LowAttendanceSubjects(tt.threshold) {
			require.Less(t, s.AttendanceRate, tt.threshold)
			got = append(got, s.Subject)
		}
		require.Equal(t, tt.want, got, "threshold %v", tt.threshold)
	}
}

func TestEmptyResult(t *testing.T) {
	result := &Result{}
	require.Equal(t, 0.0, result.OverallRate())
	require.Empty(t, result.SubjectSummaries())
	for _, n := range result.StatusCounts() {
		require.Zero(t, n)
	}
}

func TestRounding(t *testing.T) {
	result := &Result{Items: []models.AttendanceItem{
		{Date: "2024-04-01", Subject: "a", Teacher: "t", Status: models.StatusPresent},
		{Date: "2024-04-02", Subject: "a", Teacher: "t", Status: models.StatusAbsent},
		{Date: "2024-04-03", Subject: "a", Teacher: "t", Status: models.StatusAbsent},
	}}
	require.Equal(t, 33.33, result.OverallRate())
}

func TestBySubjectAndDateRange(t *testing.T) {
	result := StubResult()
	require.Len(t, result.BySubject("基礎線形代数学１"), 5)
	require.Empty(t, result.BySubject("英語"))

	items, err := result.ByDateRange("2024-04-15", "2024-04-29")
	require.NoError(t, err)
	require.Len(t, items, 6)

	_, err = result.ByDateRange("April", "2024-04-29")
	require.Error(t, err)
}

func TestFetchStubFallback(t *testing.T) {
	s, _ := newSession(t, session.Debug{Stub: true}, fixture.NewMemory(nil))
	result, err := Fetch(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StubResult().Items, result.Items)
}

func TestFetchStubFixture(t *testing.T) {
	store := fixture.NewMemory(map[string]string{fixture.Key(StubKey): attendancePage})
	s, _ := newSession(t, session.Debug{Stub: true}, store)
	result, err := Fetch(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, wantParsed, result.Items)
}

func TestFetchLive(t *testing.T) {
	s, transport := newSession(t, session.Debug{}, nil)
	s.SetDocument(mustDoc(t, menuPage))
	transport.RegisterResponder("POST", baseURL+"/up/faces/up/po/menu.jsp", func(req *http.Request) (*http.Response, error) {
		require.NoError(t, req.ParseForm())
		require.Equal(t, "71", req.PostForm.Get("header:form1:hiddenFuncRowId"))
		return httpmock.NewStringResponse(http.StatusOK, attendancePage), nil
	})

	result, err := Fetch(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, wantParsed, result.Items)
}

func TestFetchLiveWithoutEntry(t *testing.T) {
	s, _ := newSession(t, session.Debug{}, nil)
	s.SetDocument(mustDoc(t, `<html><body><div id="menubox"></div></body></html>`))
	_, err := Fetch(context.Background(), s)
	require.ErrorIs(t, err, ErrMenuNotFound)
}
