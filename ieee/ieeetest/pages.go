package ieeetest

import (
	"encoding/json"
	"fmt"
)

// Metadata builds the document metadata of a complete article
func Metadata(title, abstract, date string, keywords ...string) map[string]interface{} {
	kwd := make([]string, len(keywords))
	copy(kwd, keywords)

	return map[string]interface{}{
		"title":                  title,
		"abstract":               abstract,
		"displayPublicationDate": date,
		"keywords": []map[string]interface{}{
			{"type": "IEEE Keywords", "kwd": kwd},
		},
	}
}

// ArticlePage renders an article page embedding meta the way the site does
func ArticlePage(meta map[string]interface{}) string {
	data, err := json.Marshal(meta)
	if err != nil {
		panic(fmt.Sprintf("ieeetest: marshal metadata: %v", err))
	}
	return RawArticlePage(string(data))
}

// RawArticlePage embeds block verbatim as the metadata assignment
func RawArticlePage(block string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<title>IEEE Xplore</title>
<script type="text/javascript">
var xplGlobal = xplGlobal || {};
xplGlobal.document.metadata=%s;
xplGlobal.document.userLoggedIn=false;
</script>
</head>
<body><div id="LayoutWrapper"></div></body>
</html>
`, block)
}

// SimpleIssue builds an issue whose articles are all complete and dated date.
// Links are /document/<issueID>-<i>/.
func SimpleIssue(issueID string, year, articles int, date string) Issue {
	issue := Issue{IssueID: issueID, Year: year}
	for i := 0; i < articles; i++ {
		title := fmt.Sprintf("Survey %s-%d", issueID, i)
		issue.Articles = append(issue.Articles, Article{
			Title: title,
			Link:  fmt.Sprintf("/document/%s-%d/", issueID, i),
			Page:  ArticlePage(Metadata(title, "Abstract of "+title, date, "survey", issueID)),
		})
	}
	return issue
}
