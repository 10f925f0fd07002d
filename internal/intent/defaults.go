package intent

// DefaultSpec is the built-in Korean command vocabulary for the Go2 menu.
func DefaultSpec() RegistrySpec {
	return RegistrySpec{
		Intents: []IntentSpec{
			{Code: 1, Name: "StandUp", Rules: []RuleSpec{
				{`일어(서|나)`, 2.0}, {`서`, 1.5}, {`일으키`, 1.5}, {`기립`, 2.0},
			}},
			{Code: 2, Name: "StandDown", Rules: []RuleSpec{
				{`엎드려`, 2.0}, {`누워`, 2.0}, {`빵`, 1.5},
			}},
			{Code: 3, Name: "Sit", Rules: []RuleSpec{
				{`앉`, 2.0}, {`앉기`, 2.0}, {`앉혀`, 1.5},
			}},
			{Code: 4, Name: "RiseSit", Rules: []RuleSpec{
				{`일어(서|나)`, 2.0}, {`복구`, 1.8}, {`일으켜`, 1.8},
			}},
			{Code: 5, Name: "BalanceStand", Rules: []RuleSpec{
				{`균형`, 2.0}, {`밸런스`, 2.0}, {`밸런싱`, 2.0}, {`밸런스서`, 2.0},
			}},
			{Code: 6, Name: "RecoveryStand", Rules: []RuleSpec{
				{`회복`, 2.0}, {`리커버`, 1.5}, {`넘어.*복구`, 2.0}, {`복구`, 1.5},
			}},
			{Code: 7, Name: "StopMove", Rules: []RuleSpec{
				{`정지`, 2.0}, {`멈춰`, 2.0}, {`멈추`, 2.0}, {`스탑`, 1.5}, {`그만`, 1.5},
			}},
			{Code: 8, Name: "Hello", Rules: []RuleSpec{
				{`인사`, 2.0}, {`헬로`, 1.8}, {`안녕(하세|)`, 1.5}, {`하이`, 1.5}, {`손.*흔`, 1.5},
			}},
			{Code: 9, Name: "Stretch", Rules: []RuleSpec{
				{`스트레칭`, 2.0}, {`기지개`, 1.5}, {`쭉`, 1.5},
			}},
			{Code: 10, Name: "Content", Rules: []RuleSpec{
				{`행복`, 2.0}, {`기뻐`, 1.5}, {`해피`, 1.5}, {`응원`, 2.0},
			}},
			{Code: 11, Name: "Heart", Rules: []RuleSpec{
				{`하트`, 2.0}, {`하뚜`, 1.7}, {`하트해`, 2.0}, {`사랑해`, 2.0}, {`사랑`, 2.0},
			}},
			{Code: 12, Name: "Scrape", Rules: []RuleSpec{
				{`(절|머리\s*숙|사죄|사과)`, 2.0}, {`인사.*깊`, 1.2}, {`용서`, 2.0}, {`빌어`, 2.0},
			}},
			{Code: 13, Name: "FrontJump", Rules: []RuleSpec{
				{`점프`, 2.0}, {`뛰어`, 1.8}, {`점프해`, 2.0},
			}},
		},
		Go: []RuleSpec{
			{Pattern: `(출발|시작|가자|레디고|렛츠고|레츠고)`}, {Pattern: `^/go$`},
		},
		Quit: []RuleSpec{
			{Pattern: `종료`}, {Pattern: `끝내`}, {Pattern: `프로그램\s*끝`},
			{Pattern: `나가기`}, {Pattern: `quit`}, {Pattern: `exit`},
		},
	}
}

// DefaultRegistry compiles DefaultSpec. It panics only if the built-in
// vocabulary itself is malformed.
func DefaultRegistry() *Registry {
	reg, err := Compile(DefaultSpec())
	if err != nil {
		panic("intent: built-in registry does not compile: " + err.Error())
	}
	return reg
}
