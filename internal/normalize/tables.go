package normalize

// Alias tables are a closed enumeration resolved at process start.
// They are read-only after init; normalization never mutates them and
// nothing here is persisted.

// companyAliases maps a canonical company name to its known variant
// spellings. Matching is lowercase substring membership.
var companyAliases = map[string][]string{
	"google":    {"google", "alphabet inc", "alphabet", "google llc", "google inc"},
	"meta":      {"meta", "facebook", "fb", "meta platforms"},
	"microsoft": {"microsoft", "msft", "ms"},
	"amazon":    {"amazon", "amzn", "aws"},
	"apple":     {"apple", "apple inc", "cupertino"},
	"netflix":   {"netflix", "nflx"},
	"tesla":     {"tesla", "tesla motors"},
	"openai":    {"openai", "open ai", "chatgpt company"},
	"anthropic": {"anthropic", "claude company"},
}

// locationAliases maps a canonical location to its colloquial variants.
var locationAliases = map[string][]string{
	"san francisco": {"sf", "san francisco", "san francisco, ca", "bay area"},
	"new york":      {"nyc", "new york", "new york city", "manhattan", "brooklyn"},
	"seattle":       {"seattle", "seattle, wa", "amazon hq", "microsoft area"},
	"austin":        {"austin", "austin, tx", "atx"},
	"los angeles":   {"la", "los angeles", "los angeles, ca", "hollywood"},
}

// techExpansions maps shorthand technology names to their full form.
// Matching is whole-word against lowercased text.
var techExpansions = map[string]string{
	"k8s":     "Kubernetes",
	"tf":      "Terraform",
	"aws":     "Amazon Web Services",
	"gcp":     "Google Cloud Platform",
	"ddb":     "DynamoDB",
	"rds":     "Amazon RDS",
	"s3":      "Amazon S3",
	"ec2":     "Amazon EC2",
	"js":      "JavaScript",
	"ts":      "TypeScript",
	"py":      "Python",
	"golang":  "Go",
	"reactjs": "React",
	"nodejs":  "Node.js",
	"ml":      "Machine Learning",
	"ai":      "Artificial Intelligence",
	"nlp":     "Natural Language Processing",
	"cv":      "Computer Vision",
	"devops":  "DevOps",
	"ci/cd":   "CI/CD",
	"rest":    "REST API",
	"graphql": "GraphQL",
}

// emojiLabels replaces meaning-bearing emoji with text labels and
// strips decorative ones.
var emojiLabels = map[string]string{
	"📧": "email:",
	"📱": "phone:",
	"🐍": "",
	"⚡":  "",
	"🚀": "",
	"💼": "",
	"🏢": "company:",
	"📅": "date:",
	"🎓": "education:",
	"💻": "",
	"🔧": "tools:",
	"🌟": "",
}
