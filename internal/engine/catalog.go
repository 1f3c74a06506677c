package engine

// Builtin 内置提供方描述
type Builtin struct {
	Name         string
	Factory      Factory
	Capabilities ProviderCapabilities
	APIKeyName   string
	NeedsBrowser bool
}

// BuiltinNames 内置提供方名称，也是默认注册顺序
var BuiltinNames = []string{
	"duckduckgo",
	"bing",
	"wikipedia",
	"google_news",
	"hackernews",
	"tavily",
	"serpapi",
	"browser_google",
}

// IsBuiltin 是否为内置提供方
func IsBuiltin(name string) bool {
	for _, n := range BuiltinNames {
		if n == name {
			return true
		}
	}
	return false
}

// Builtins 返回内置提供方目录；bm 为 nil 时不包含浏览器类提供方
func Builtins(bm *BrowserManager) []Builtin {
	list := []Builtin{
		{Name: "duckduckgo", Factory: NewDuckDuckGoProvider, Capabilities: DuckDuckGoCapabilities},
		{Name: "bing", Factory: NewBingProvider, Capabilities: BingCapabilities},
		{Name: "wikipedia", Factory: NewWikipediaProvider, Capabilities: WikipediaCapabilities},
		{Name: "google_news", Factory: NewGoogleNewsProvider, Capabilities: GoogleNewsCapabilities},
		{Name: "hackernews", Factory: NewHackerNewsProvider, Capabilities: HackerNewsCapabilities},
		{Name: "tavily", Factory: NewTavilyProvider, Capabilities: TavilyCapabilities, APIKeyName: "TAVILY_API_KEY"},
		{Name: "serpapi", Factory: NewSerpAPIProvider, Capabilities: SerpAPICapabilities, APIKeyName: "SERPAPI_API_KEY"},
	}
	if bm != nil {
		list = append(list, Builtin{
			Name:         "browser_google",
			Factory:      NewBrowserGoogleFactory(bm),
			Capabilities: BrowserGoogleCapabilities,
			NeedsBrowser: true,
		})
	}
	return list
}
