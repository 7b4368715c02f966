package model

// Category is a top-level knowledge-base bucket. The set is closed and
// mutually exclusive; the approval protocol only accepts values from it.
type Category string

const (
	CategoryAI          Category = "ai"
	CategoryWeb         Category = "web"
	CategoryProgramming Category = "programming"
	CategoryDevOps      Category = "devops"
	CategoryMobile      Category = "mobile"
	CategorySecurity    Category = "security"
	CategoryData        Category = "data"
	CategoryMacOS       Category = "macos"
	CategoryLinux       Category = "linux"
	CategoryWindows     Category = "windows"
	CategoryGeneral     Category = "general"
)

// Categories in menu order.
var Categories = []Category{
	CategoryAI, CategoryWeb, CategoryProgramming, CategoryDevOps,
	CategoryMobile, CategorySecurity, CategoryData, CategoryMacOS,
	CategoryLinux, CategoryWindows, CategoryGeneral,
}

var categoryDisplay = map[Category]string{
	CategoryAI:          "🤖 AI",
	CategoryWeb:         "🌐 Web Development",
	CategoryProgramming: "💻 Programming",
	CategoryDevOps:      "⚙️ DevOps",
	CategoryMobile:      "📱 Mobile",
	CategorySecurity:    "🛡️ Security",
	CategoryData:        "📊 Data",
	CategoryMacOS:       "🍎 macOS",
	CategoryLinux:       "🐧 Linux",
	CategoryWindows:     "🪟 Windows",
	CategoryGeneral:     "📚 General Tech",
}

func (c Category) Display() string {
	if d, ok := categoryDisplay[c]; ok {
		return d
	}
	return string(c)
}

func ValidCategory(s string) bool {
	_, ok := categoryDisplay[Category(s)]
	return ok
}

// Subcategories shared by every category, in menu order.
var Subcategories = []string{
	"Concepts", "Tools", "Tutorial", "Tips & Tricks", "Reference",
}

func ValidSubcategory(s string) bool {
	for _, sub := range Subcategories {
		if sub == s {
			return true
		}
	}
	return false
}

// CategorySuggestion is a classifier's pre-selection hint shown in the
// category menu. The user always has the final say.
type CategorySuggestion struct {
	Category   Category
	Confidence float64
	Reason     string
}
