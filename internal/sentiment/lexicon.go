package sentiment

// lexicon maps lower-case tokens to valence in [-4, 4].
var lexicon = map[string]float64{
	// positive
	"good": 1.9, "great": 3.1, "excellent": 2.7, "amazing": 2.8, "awesome": 3.1,
	"best": 3.2, "better": 1.9, "love": 3.2, "loved": 2.9, "loves": 2.7,
	"like": 1.5, "liked": 1.8, "happy": 2.7, "glad": 2.0, "joy": 2.8,
	"win": 2.8, "wins": 2.7, "won": 2.7, "winning": 2.4, "victory": 2.8,
	"success": 2.7, "successful": 2.8, "hope": 1.9, "hopeful": 2.3, "optimistic": 2.1,
	"support": 1.7, "supports": 1.5, "praise": 2.6, "praised": 2.2, "celebrate": 2.7,
	"peace": 2.5, "peaceful": 2.2, "safe": 1.9, "secure": 1.4, "strong": 2.3,
	"growth": 1.6, "improve": 1.9, "improved": 2.1, "benefit": 2.0, "gain": 2.0,
	"gains": 1.6, "agree": 1.5, "agreement": 2.2, "fair": 1.3, "free": 2.3,
	"freedom": 3.2, "honest": 2.3, "brave": 2.4, "proud": 2.1, "thank": 1.5,
	"thanks": 1.9, "wonderful": 2.7, "fantastic": 2.6, "positive": 2.6, "boost": 1.7,
	"rescue": 1.5, "relief": 2.1, "recover": 1.4, "recovery": 1.4, "trust": 2.3,
	"nice": 1.8, "fun": 2.3, "beautiful": 2.9, "helpful": 1.8, "help": 1.7,
	"historic": 1.1, "landmark": 1.2, "breakthrough": 2.2, "bipartisan": 0.9, "unity": 1.9,
	// negative
	"bad": -2.5, "worse": -2.1, "worst": -3.1, "terrible": -2.1, "awful": -2.0,
	"horrible": -2.5, "hate": -2.7, "hated": -3.2, "hates": -1.9, "angry": -2.3,
	"anger": -2.7, "sad": -2.1, "fear": -2.2, "fears": -1.8, "afraid": -2.0,
	"lose": -1.3, "loses": -1.3, "lost": -1.3, "loss": -1.3, "losing": -1.6,
	"fail": -2.5, "failed": -2.3, "failure": -2.3, "fails": -1.8, "crisis": -3.1,
	"war": -2.9, "attack": -2.1, "attacks": -1.9, "attacked": -2.1, "kill": -3.7,
	"killed": -3.5, "killing": -3.4, "dead": -3.3, "death": -2.9, "deaths": -2.9,
	"violence": -3.1, "violent": -2.9, "threat": -2.4, "threats": -1.8, "danger": -2.4,
	"dangerous": -2.1, "corrupt": -3.0, "corruption": -1.9, "fraud": -2.8, "scandal": -1.9,
	"lie": -1.6, "lies": -1.8, "lied": -1.6, "liar": -3.1, "blame": -1.4,
	"blamed": -2.1, "chaos": -2.7, "disaster": -3.1, "collapse": -2.2, "protest": -1.0,
	"protests": -0.9, "riot": -2.6, "shooting": -1.4, "crash": -1.7, "injured": -1.7,
	"hurt": -2.4, "pain": -2.3, "problem": -1.7, "problems": -1.7, "wrong": -2.1,
	"weak": -1.9, "poor": -2.1, "illegal": -2.6, "abuse": -3.2, "criticize": -1.9,
	"criticized": -1.5, "criticism": -1.9, "oppose": -1.1, "opposes": -0.8, "ban": -2.6,
	"banned": -2.0, "condemn": -1.6, "condemned": -1.9, "outrage": -2.3, "furious": -2.7,
	"negative": -2.7, "worry": -1.9, "worried": -1.2, "concern": -1.0, "concerns": -1.3,
	"risk": -1.1, "toxic": -2.6, "racist": -3.2, "hostile": -2.2, "destroy": -2.5,
	"destroyed": -2.7, "threaten": -2.0, "threatened": -2.0, "dispute": -1.7, "sanction": -0.8,
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "nobody": {}, "nothing": {},
	"neither": {}, "nor": {}, "without": {}, "cannot": {}, "cant": {}, "dont": {},
	"doesnt": {}, "didnt": {}, "isnt": {}, "wasnt": {}, "arent": {}, "werent": {},
	"wont": {}, "wouldnt": {}, "shouldnt": {}, "couldnt": {}, "aint": {}, "hardly": {},
}

const (
	boostIncrement = 0.293
	boostDecrement = -0.293
)

var boosters = map[string]float64{
	"very": boostIncrement, "extremely": boostIncrement, "really": boostIncrement,
	"incredibly": boostIncrement, "highly": boostIncrement, "hugely": boostIncrement,
	"so": boostIncrement, "totally": boostIncrement, "most": boostIncrement,
	"absolutely": boostIncrement, "deeply": boostIncrement, "completely": boostIncrement,
	"barely": boostDecrement, "slightly": boostDecrement, "somewhat": boostDecrement,
	"kinda": boostDecrement, "marginally": boostDecrement, "partly": boostDecrement,
	"less": boostDecrement, "little": boostDecrement,
}
