package tags

var stopWords = toSet(
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before", "being",
	"below", "between", "both", "but", "by", "can", "cannot", "could", "did", "do",
	"does", "doing", "done", "down", "during", "each", "either", "else", "etc",
	"even", "ever", "every", "few", "first", "for", "from", "further", "get",
	"gets", "given", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "however", "i", "ie", "if", "in",
	"into", "is", "it", "its", "itself", "just", "least", "less", "let", "like",
	"may", "me", "might", "more", "most", "much", "must", "my", "myself", "need",
	"needs", "new", "no", "nor", "not", "now", "of", "off", "often", "on", "once",
	"one", "only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
	"per", "rather", "same", "see", "should", "since", "so", "some", "such",
	"than", "that", "the", "their", "theirs", "them", "themselves", "then",
	"there", "these", "they", "this", "those", "though", "through", "thus", "to",
	"too", "two", "under", "until", "up", "upon", "us", "use", "used", "using",
	"very", "via", "was", "we", "well", "were", "what", "when", "where", "whether",
	"which", "while", "who", "whom", "why", "will", "with", "within", "without",
	"would", "yet", "you", "your", "yours", "yourself", "yourselves",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
