package agent

import "testing"

func TestIsConfirmation(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"ok", true},
		{"Okay", true},
		{"yes", true},
		{"Looks good", true},
		{"Proceed", true},
		{"let's go", true},
		{"Perfect, do it", true},
		{"go ahead and begin", true},
		{"Confirmed", true},
		{"start research", true},

		// Feedback keywords override approval wording.
		{"ok but remove provider X", false},
		{"yes, but target beginners only", false},
		{"looks good, add Coursera too", false},
		{"great, change the audience to starters", false},
		{"perfect but include certifications", false},

		// No approval wording at all.
		{"remove Penn Foster", false},
		{"what about pricing?", false},
		{"", false},

		// "starters" must not confirm via "start".
		{"starters", false},

		// Long messages are feedback even when they contain approval words.
		{"yes I think this plan is mostly fine however I would like it expanded", false},
	}
	for _, tc := range cases {
		if got := IsConfirmation(tc.message); got != tc.want {
			t.Fatalf("IsConfirmation(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestIsNewTopic(t *testing.T) {
	cases := []struct {
		message  string
		industry string
		want     bool
	}{
		// Fresh request with no prior industry.
		{"I want to learn about python programming", "", true},
		{"find courses on data science", "", true},

		// Switching away from a confirmed topic.
		{"I want a course on Python programming", "HVAC", true},
		{"teach me digital marketing", "HVAC", true},

		// Plan feedback is never a new topic.
		{"remove Coursera from the plan", "HVAC", false},
		{"yes proceed", "HVAC", false},
		{"ok", "HVAC", false},

		// Same topic restated shares keywords with the current industry.
		{"I want to research python programming best practices", "Python Programming", false},

		// No research intent at all.
		{"what were those courses again?", "HVAC", false},
		{"", "HVAC", false},
	}
	for _, tc := range cases {
		if got := IsNewTopic(tc.message, tc.industry); got != tc.want {
			t.Fatalf("IsNewTopic(%q, %q) = %v, want %v", tc.message, tc.industry, got, tc.want)
		}
	}
}

func TestCleanTopic(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"I want to create a course about HVAC", "HVAC"},
		{"i want to learn about python programming", "Python Programming"},
		{"I want a course on woodworking", "Woodworking"},
		{"Research on digital marketing", "Digital Marketing"},
		{"can you research data engineering", "Data Engineering"},
		{"find courses on data science", "Data Science"},
		{"need training on welding", "Welding"},
		{"help me with project management", "Project Management"},
		{"hvac training", "HVAC"},
		{"machine learning courses", "Machine Learning"},
		{"let's learn about counter strike", "Counter-Strike"},
		{"how to be good at playing chess", "Chess"},
		{"csgo", "CS:GO"},
		{"cs2", "CS2"},
		{"ai", "AI"},
		{"it", "IT"},
		{"machine learning", "Machine Learning"},
		{"  Woodworking  ", "Woodworking"},
	}
	for _, tc := range cases {
		if got := CleanTopic(tc.input); got != tc.want {
			t.Fatalf("CleanTopic(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCleanTopicRepairsAcronymsInsidePhrases(t *testing.T) {
	if got := CleanTopic("hvac certification"); got != "HVAC Certification" {
		t.Fatalf("got %q", got)
	}
	if got := CleanTopic("learn about ai engineering"); got != "AI Engineering" {
		t.Fatalf("got %q", got)
	}
}

func TestIsVagueTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  bool
	}{
		{"", true},
		{"help", true},
		{"courses", true},
		{"Training", true},
		{"something", true},
		{"welding", false},
		{"Data Science", false},
		{"anything else", false}, // two words, assumed specific
	}
	for _, tc := range cases {
		if got := isVagueTopic(tc.topic); got != tc.want {
			t.Fatalf("isVagueTopic(%q) = %v, want %v", tc.topic, got, tc.want)
		}
	}
}
